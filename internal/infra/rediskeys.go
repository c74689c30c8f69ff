package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных клиента в Redis
	RedisNamespace = "crisisguard"
)

// Ключи (состояние)
const (
	RedisKeyLastAlert           = RedisNamespace + ":alerts:last"
	RedisKeyLastAlertReceivedAt = RedisNamespace + ":alerts:last:received_at"
	RedisKeyJournal             = RedisNamespace + ":journal"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAlerts — сюда публикуется каждая сохраненная тревога для UI-коллабораторов.
	RedisChanAlerts = RedisNamespace + ":alerts"
)

// RedisJournalMaxLen — сколько последних записей журнала держим в списке.
const RedisJournalMaxLen = 10000

package domain

// Verdict — итог классификации одной ссылки.
type Verdict string

const (
	VerdictPending   Verdict = "PENDING"   // Вердикта нет (еще не проверяли или сервис недоступен)
	VerdictSafe      Verdict = "SAFE"      // Сервис не считает ссылку вредной
	VerdictMalicious Verdict = "MALICIOUS" // Сервис вернул сентинел MALICIOUS
	VerdictInsecure  Verdict = "INSECURE"  // Локальное правило: незашифрованный транспорт (http:)
)

// MaliciousSentinel — точное значение поля verdict в ответе /scan.
const MaliciousSentinel = "MALICIOUS"

// Disables сообщает, выключается ли ссылка при таком вердикте.
func (v Verdict) Disables() bool {
	return v == VerdictMalicious || v == VerdictInsecure
}

// LinkVerdict — сериализуемый результат по ссылке (для API и журнала).
type LinkVerdict struct {
	URL     string  `json:"url"`
	Verdict Verdict `json:"verdict"`
}

// PageReport — результат проверки одной страницы.
type PageReport struct {
	ScanID  string        `json:"scan_id"`
	PageURL string        `json:"page_url,omitempty"`
	Links   []LinkVerdict `json:"links"`
	HTML    string        `json:"html,omitempty"` // Страница после принудительного отключения ссылок
}

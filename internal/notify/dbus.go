package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsMethod = notificationsDest + ".Notify"
)

// DBusNotifier шлет уведомления через org.freedesktop.Notifications на сессионной шине.
type DBusNotifier struct {
	conn    *dbus.Conn
	appName string
	timeout time.Duration
	seq     sequence
	logger  *zap.Logger
}

func NewDBusNotifier(appName string, timeout time.Duration, logger *zap.Logger) (*DBusNotifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("dbus: connect session bus: %w", err)
	}
	return &DBusNotifier{
		conn:    conn,
		appName: appName,
		timeout: timeout,
		logger:  logger.Named("notify.dbus"),
	}, nil
}

func (n *DBusNotifier) Notify(ctx context.Context, title, body string) (uint64, error) {
	obj := n.conn.Object(notificationsDest, notificationsPath)

	// Notify(app_name, replaces_id, app_icon, summary, body, actions, hints, expire_timeout)
	call := obj.CallWithContext(ctx, notificationsMethod, 0,
		n.appName,
		uint32(0),
		"dialog-warning",
		title,
		body,
		[]string{},
		map[string]dbus.Variant{},
		int32(n.timeout.Milliseconds()),
	)
	if call.Err != nil {
		return 0, fmt.Errorf("dbus: notify: %w", call.Err)
	}

	var serverID uint32
	if err := call.Store(&serverID); err != nil {
		n.logger.Debug("notification id not returned", zap.Error(err))
	}

	id := n.seq.next()
	n.logger.Debug("notification delivered", zap.Uint64("id", id), zap.Uint32("server_id", serverID))
	return id, nil
}

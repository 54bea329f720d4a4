package record

// Record kinds known to the application. The store itself accepts any kind
// name; these are the ones the schema history and housekeeping touch.
const (
	KindAction               = "action"
	KindNotificationAction   = "notification_action"
	KindNotificationCategory = "notification_category"
	KindWatchComplication    = "watch_complication"
	KindScene                = "scene"
	KindZone                 = "zone"
	KindServer               = "server"
	KindLocationHistoryEntry = "location_history_entry"
	KindLocationError        = "location_error"
	KindClientEvent          = "client_event"
)

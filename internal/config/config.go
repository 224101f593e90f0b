package config

import "os"

// Config carries all process-wide runtime configuration. It is resolved once
// at startup and passed into the adapters that need it.
type Config struct {
	OrdersTable        string
	PaymentsTable      string
	WebhookEventsTable string
	AuditsTable        string
	IdempotencyTable   string
	ProductsTable      string
	UsersTable         string

	OrderEventsQueueURL   string
	NotificationsQueueURL string

	// Cashfree payment gateway. Leaving client id/secret empty degrades
	// createOrder to a PENDING-only response instead of failing.
	CashfreeClientID string
	CashfreeSecret   string
	CashfreeEnv      string

	// Google Directions. Leaving the key empty disables ETA computation.
	GoogleMapsKey string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		OrdersTable:        getEnv("ORDERS_TABLE", "orders"),
		PaymentsTable:      getEnv("PAYMENTS_TABLE", "payments"),
		WebhookEventsTable: getEnv("WEBHOOK_EVENTS_TABLE", "webhook_events"),
		AuditsTable:        getEnv("AUDITS_TABLE", "audits"),
		IdempotencyTable:   getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		ProductsTable:      getEnv("PRODUCTS_TABLE", "products"),
		UsersTable:         getEnv("USERS_TABLE", "users"),

		OrderEventsQueueURL:   os.Getenv("ORDER_EVENTS_QUEUE_URL"),
		NotificationsQueueURL: os.Getenv("NOTIFICATIONS_QUEUE_URL"),

		CashfreeClientID: os.Getenv("CASHFREE_CLIENT_ID"),
		CashfreeSecret:   os.Getenv("CASHFREE_SECRET"),
		CashfreeEnv:      getEnv("CASHFREE_ENV", "sandbox"),

		GoogleMapsKey: os.Getenv("GOOGLE_MAPS_KEY"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

package configs

// Dispatch configures the batch-send loop.
type Dispatch struct {
	// SendPerTick caps how many messages one tick may send across all
	// recipient sources.
	SendPerTick int `env:"SEND_PER_TICK" envDefault:"50"`
	// OperatorEmail, when set, receives a notification message once a
	// campaign finishes sending.
	OperatorEmail string `env:"OPERATOR_EMAIL"`
	// Organization is stamped into the Organization header of every
	// outgoing message.
	Organization string `env:"ORGANIZATION" envDefault:"mailrun"`
}

package domain

// Service hands out validated gateway configurations. Every config it
// returns already passed Validate at startup.
type Service interface {
	For(backend string) (Config, error)
	Backends() []string
}

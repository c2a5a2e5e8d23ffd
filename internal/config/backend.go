package config

// ConfigBackend is where config keys live outside the process: UserDefaults
// (domain com.vnavi.app) on macOS, a flat JSON file under the XDG config dir
// everywhere else. Tests substitute an in-memory implementation.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

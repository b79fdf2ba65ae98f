package store

import "fmt"

// Var is a bound accessor over one key: a thin convenience view that
// delegates every operation to the canonical Get/Set methods and keeps no
// state of its own.
type Var struct {
	s   *Store
	key string
}

// Var binds an accessor to key.
func (s *Store) Var(key string) Var { return Var{s: s, key: key} }

// Load returns the bound variable's value.
func (v Var) Load() (any, error) { return v.s.Get(v.key) }

// Store sets the bound variable, overwriting any existing value.
func (v Var) Store(value any) error { return v.s.Set(v.key, value, true) }

// Delete removes the bound variable.
func (v Var) Delete() error { return v.s.Delete(v.key) }

// Exists reports whether the bound variable is present.
func (v Var) Exists() bool { return v.s.Exists(v.key) }

// GetString returns the value under key as a string.
func (s *Store) GetString(key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", typeErr(key, v, "string")
	}
	return str, nil
}

// GetBool returns the value under key as a bool.
func (s *Store) GetBool(key string) (bool, error) {
	v, err := s.Get(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeErr(key, v, "bool")
	}
	return b, nil
}

// GetInt returns the value under key as an int. Integral float64 values
// convert too, since the JSON codec decodes all numbers as float64.
func (s *Store) GetInt(key string) (int, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, typeErr(key, v, "int")
}

// GetFloat64 returns the value under key as a float64.
func (s *Store) GetFloat64(key string) (float64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, typeErr(key, v, "float64")
}

func typeErr(key string, v any, want string) error {
	return fmt.Errorf("variable %q holds %T, not %s", key, v, want)
}

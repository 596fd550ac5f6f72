package env

import "fmt"

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

func (e Environment) IsDevelopment() bool { return e == Development }
func (e Environment) IsProduction() bool  { return e == Production }

func Parse(s string) (Environment, error) {
	switch Environment(s) {
	case Development, Production:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("invalid environment: %q (valid: development, production)", s)
	}
}

// Package resolve turns stored variable values into concrete strings.
//
// A stored value is one of three forms:
//
//	plain text            literal, used as is
//	$fragment:cat/name    content of the fragment file
//	$env:NAME             value of an env variable, which may itself be $env:OTHER
package resolve

import "strings"

// Value prefixes.
const (
	FragmentPrefix = "$fragment:"
	EnvPrefix      = "$env:"
)

// Reference is a decoded variable value: Literal, FragmentRef or EnvRef.
type Reference interface {
	isReference()
	// Raw returns the value the reference was parsed from.
	Raw() string
}

// Literal is a plain value.
type Literal struct {
	Value string
}

// FragmentRef points at <fragments>/<Category>/<Name>.md.
type FragmentRef struct {
	raw      string
	Category string
	Name     string
}

// EnvRef points at an env variable by name.
type EnvRef struct {
	raw  string
	Name string
}

func (Literal) isReference()     {}
func (FragmentRef) isReference() {}
func (EnvRef) isReference()      {}

func (l Literal) Raw() string     { return l.Value }
func (f FragmentRef) Raw() string { return f.raw }
func (e EnvRef) Raw() string      { return e.raw }

// Parse decodes raw. Anything without a known prefix is a Literal.
func Parse(raw string) Reference {
	switch {
	case strings.HasPrefix(raw, FragmentPrefix):
		rest := strings.TrimPrefix(raw, FragmentPrefix)
		category, name, _ := strings.Cut(rest, "/")
		return FragmentRef{raw: raw, Category: strings.TrimSpace(category), Name: strings.TrimSpace(name)}
	case strings.HasPrefix(raw, EnvPrefix):
		return EnvRef{raw: raw, Name: strings.TrimSpace(strings.TrimPrefix(raw, EnvPrefix))}
	default:
		return Literal{Value: raw}
	}
}

// IsReference reports whether raw carries one of the reference prefixes.
func IsReference(raw string) bool {
	_, literal := Parse(raw).(Literal)
	return !literal
}

// FragmentValue formats a fragment reference.
func FragmentValue(category, name string) string {
	return FragmentPrefix + category + "/" + name
}

// EnvValue formats an env reference.
func EnvValue(name string) string {
	return EnvPrefix + name
}

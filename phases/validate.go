package phases

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/BrianJOC/host-harden/utils/systemuser"
)

var (
	labelPattern   = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	numericPattern = regexp.MustCompile(`^[0-9]+$`)
)

// ValidUsername accepts portable lowercase login names.
func ValidUsername(v string) error {
	if !systemuser.ValidUsername(v) {
		return errors.New("expected a login name of lowercase letters, digits, '_' or '-', starting with a letter or '_', at most 32 characters")
	}
	return nil
}

// ValidPort accepts N, N/tcp, N/udp and ranges N:M/tcp or N:M/udp.
func ValidPort(v string) error {
	const expected = "expected a port 1-65535, optionally suffixed /tcp or /udp, or a range N:M/tcp|udp"
	ports, proto, hasProto := strings.Cut(v, "/")
	if hasProto && proto != "tcp" && proto != "udp" {
		return errors.New(expected)
	}
	low, high, isRange := strings.Cut(ports, ":")
	if isRange && !hasProto {
		return errors.New("port ranges need a protocol, e.g. 60000:61000/udp")
	}
	first, err := parsePort(low)
	if err != nil {
		return errors.New(expected)
	}
	if isRange {
		last, err := parsePort(high)
		if err != nil || last <= first {
			return errors.New(expected)
		}
	}
	return nil
}

func parsePort(v string) (int, error) {
	if !numericPattern.MatchString(v) {
		return 0, fmt.Errorf("not a number: %q", v)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("out of range: %q", v)
	}
	return n, nil
}

// ValidDomain accepts fully qualified DNS names such as example.com.
func ValidDomain(v string) error {
	const expected = "expected a fully qualified domain name such as example.com"
	v = strings.TrimSuffix(v, ".")
	if v == "" || len(v) > 253 {
		return errors.New(expected)
	}
	labels := strings.Split(v, ".")
	if len(labels) < 2 {
		return errors.New(expected)
	}
	for _, label := range labels {
		if !labelPattern.MatchString(label) {
			return errors.New(expected)
		}
	}
	if numericPattern.MatchString(labels[len(labels)-1]) {
		return errors.New(expected)
	}
	return nil
}

// ValidHostPort accepts host:port where host is an IP, localhost or a hostname.
func ValidHostPort(v string) error {
	const expected = "expected host:port, e.g. 127.0.0.1:8080"
	host, port, err := net.SplitHostPort(v)
	if err != nil || host == "" {
		return errors.New(expected)
	}
	if _, err := parsePort(port); err != nil {
		return errors.New(expected)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	for _, label := range strings.Split(host, ".") {
		if !labelPattern.MatchString(label) {
			return errors.New(expected)
		}
	}
	return nil
}

// ValidEmail accepts a bare address such as ops@example.com.
func ValidEmail(v string) error {
	const expected = "expected an email address such as ops@example.com"
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || addr.Name != "" {
		return errors.New(expected)
	}
	_, domain, _ := strings.Cut(v, "@")
	if ValidDomain(domain) != nil {
		return errors.New(expected)
	}
	return nil
}

// ValidBool accepts true/false, yes/no and on/off.
func ValidBool(v string) error {
	if _, err := ParseBool(v); err != nil {
		return errors.New("expected true or false")
	}
	return nil
}

// OneOf accepts exactly one of values.
func OneOf(values ...string) func(string) error {
	return func(v string) error {
		for _, allowed := range values {
			if v == allowed {
				return nil
			}
		}
		return fmt.Errorf("expected one of %s", strings.Join(values, ", "))
	}
}

// Each applies fn to every item of a comma separated list.
func Each(fn func(string) error) func(string) error {
	return func(v string) error {
		for _, item := range SplitList(v) {
			if err := fn(item); err != nil {
				return fmt.Errorf("item %q: %w", item, err)
			}
		}
		return nil
	}
}

// checkInput validates one resolved value against its definition.
func checkInput(def InputDefinition, value string) error {
	if value == "" {
		if def.Required {
			return ValidationError{Field: def.ID, Reason: "is required"}
		}
		return nil
	}

	var err error
	switch def.Kind {
	case InputKindConfirm:
		err = ValidBool(value)
	case InputKindSelect:
		if len(def.Options) > 0 {
			allowed := make([]string, len(def.Options))
			for i, opt := range def.Options {
				allowed[i] = opt.Value
			}
			err = OneOf(allowed...)(value)
		}
	case InputKindList:
		if def.Required && len(SplitList(value)) == 0 {
			err = errors.New("expected at least one item")
		}
	}
	if err == nil && def.Validate != nil {
		err = def.Validate(value)
	}
	if err == nil {
		return nil
	}

	var ve ValidationError
	if errors.As(err, &ve) {
		return ve
	}
	return ValidationError{Field: def.ID, Value: value, Reason: err.Error()}
}

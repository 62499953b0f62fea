package pwsh

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Params are the named parameters of a cmdlet call. A true boolean sets a
// switch parameter.
type Params map[string]any

// Record is one object a cmdlet returned, as a property map.
type Record map[string]any

var cmdletName = regexp.MustCompile(`^[A-Za-z]+-[A-Za-z0-9]+$`)

// CmdletScript builds the script body that calls cmdlet with params
// splatted, selecting every property of the objects it returns.
func CmdletScript(cmdlet string, params Params) (string, error) {
	if !cmdletName.MatchString(cmdlet) {
		return "", fmt.Errorf("invalid cmdlet name %q", cmdlet)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		if err := checkIdentifier("parameter", name); err != nil {
			return "", err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]string, 0, len(names))
	for _, name := range names {
		lit, err := Literal(params[name])
		if err != nil {
			return "", fmt.Errorf("parameter %s: %w", name, err)
		}
		entries = append(entries, fmt.Sprintf("%s = %s", name, lit))
	}

	return joinLines(
		"$p = @{ "+strings.Join(entries, "; ")+" }",
		"& "+Quote(cmdlet)+" @p | Select-Object -Property *",
	), nil
}

// ExecuteCmdlet runs a cmdlet on the host and returns its output objects.
func (s *Session) ExecuteCmdlet(ctx context.Context, cmdlet string, params Params) ([]Record, error) {
	body, err := CmdletScript(cmdlet, params)
	if err != nil {
		return nil, err
	}
	items, err := s.Do(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmdlet, err)
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		var r Record
		if err := decodeJSON(item, &r); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", cmdlet, ErrMalformedOutput, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// ExecuteCmdletInto runs a cmdlet and decodes its output objects into out,
// which must point to a slice.
func (s *Session) ExecuteCmdletInto(ctx context.Context, cmdlet string, params Params, out any) error {
	body, err := CmdletScript(cmdlet, params)
	if err != nil {
		return err
	}
	items, err := s.Do(ctx, body)
	if err != nil {
		return fmt.Errorf("%s: %w", cmdlet, err)
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := decodeJSON(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %v", cmdlet, ErrMalformedOutput, err)
	}
	return nil
}

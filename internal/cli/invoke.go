package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/render"
	"github.com/javanstorm/hvctl/pkg/cim"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <object> <method> [Name=value...]",
	Short: "Call a method on an object",
	Long: `Call a method on a machine or an object path and wait for the job it starts.

Parameters left out are passed as null. Values are read according to the
parameter's declared type; array values are comma-separated. A String
parameter given @<object path> receives that object's text form.

  hvctl invoke web01 RequestStateChange RequestedState=2`,
	Args: cobra.MinimumNArgs(2),
	RunE: runInvoke,
}

var invokeNoWait bool

func init() {
	invokeCmd.Flags().BoolVar(&invokeNoWait, "no-wait", false, "Return as soon as the method returns, without waiting for its job")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	given := make(map[string]string, len(args)-2)
	for _, arg := range args[2:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid argument %q (want Name=value)", arg)
		}
		given[name] = value
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		obj, err := s.object(ctx, args[0])
		if err != nil {
			return err
		}
		method := args[1]
		params, err := obj.MethodParameters(ctx, method)
		if err != nil {
			return err
		}
		in, err := methodArgs(ctx, obj.Scope(), params, given)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", obj.ClassName(), method, err)
		}

		engine := s.host.Engine()
		var result cim.Result
		if invokeNoWait {
			result, err = engine.Invoke(ctx, obj, method, in)
		} else {
			codes, _ := cim.LookupCodes(obj.ClassName(), method)
			ok, started := invocationOutcomes(codes)
			result, err = engine.Call(ctx, obj, method, in, codes, ok, started)
		}
		if err != nil {
			return err
		}
		return printResult(cmd, result)
	})
}

// methodArgs builds the arguments of a call from Name=value strings.
// Parameter names match case-insensitively; every formal parameter gets
// an entry.
func methodArgs(ctx context.Context, scope cim.Scope, params []cim.Parameter, given map[string]string) (cim.Args, error) {
	in := make(cim.Args, len(params))
	used := make(map[string]bool, len(given))
	for _, p := range params {
		in[p.Name] = nil
		for name, raw := range given {
			if !strings.EqualFold(name, p.Name) {
				continue
			}
			used[name] = true
			v, err := argValue(ctx, scope, p, raw)
			if err != nil {
				return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
			}
			in[p.Name] = v
		}
	}
	for name := range given {
		if !used[name] {
			return nil, fmt.Errorf("no parameter named %s", name)
		}
	}
	return in, nil
}

func argValue(ctx context.Context, scope cim.Scope, p cim.Parameter, raw string) (any, error) {
	if !p.IsArray {
		return scalarValue(ctx, scope, p.Type, raw)
	}
	if raw == "" {
		return []any{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]any, len(parts))
	for i, part := range parts {
		v, err := scalarValue(ctx, scope, p.Type, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func scalarValue(ctx context.Context, scope cim.Scope, t cim.CIMType, raw string) (any, error) {
	switch t {
	case cim.TypeBoolean:
		return strconv.ParseBool(raw)
	case cim.TypeUInt8, cim.TypeUInt16, cim.TypeUInt32, cim.TypeUInt64,
		cim.TypeSInt16, cim.TypeSInt32, cim.TypeSInt64:
		return strconv.Atoi(raw)
	case cim.TypeString:
		if strings.HasPrefix(raw, "@") {
			return scope.Resolve(ctx, raw[1:])
		}
	}
	return raw, nil
}

func printResult(cmd *cobra.Command, result cim.Result) error {
	names := make([]string, 0, len(result))
	for name := range result {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]any, len(result))
	for _, name := range names {
		values[name] = render.Plain(result[name])
	}
	return emit(cmd, values, func() *render.Table {
		t := render.NewTable("Output", "Value")
		for _, name := range names {
			t.Row(name, values[name])
		}
		return t
	})
}

// invocationOutcomes picks the success and job-started codes of a method.
// Without a table, or when the table lacks the names, the WMI convention
// of 0 and 4096 applies.
func invocationOutcomes(codes *cim.CodeTable) (ok, started cim.Code) {
	ok = cim.Code{Value: 0, Name: "Completed"}
	if c, found := codes.Find("Completed"); found {
		ok = c
	}
	started = cim.Code{Value: 4096, Name: "JobStarted"}
	for _, name := range []string{"JobStarted", "TransitionStarted"} {
		if c, found := codes.Find(name); found {
			started = c
			break
		}
	}
	return ok, started
}

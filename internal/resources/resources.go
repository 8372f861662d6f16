// Package resources clamps a tool's ResourceRequirement against host
// capacity. A requirement the host cannot meet is an error; the same
// declaration among hints degrades to what the host has.
package resources

import (
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/me/cwlinspect/internal/evaluator"
	"github.com/me/cwlinspect/pkg/cwl"
)

// Defaults when a tool declares no resource bounds.
const (
	DefaultCores  = 1
	DefaultRAMMiB = 256
)

// Host is the capacity negotiation clamps against.
type Host struct {
	Cores  int
	RAMMiB int64
}

// DetectHost reads the local machine's capacity.
func DetectHost() Host {
	h := Host{Cores: runtime.NumCPU(), RAMMiB: DefaultRAMMiB}
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		total := int64(info.Totalram) * int64(info.Unit)
		h.RAMMiB = total / (1 << 20)
	}
	return h
}

// Allocation is the negotiated grant for one invocation.
type Allocation struct {
	Cores  int
	RAMMiB int64
}

// Negotiate resolves the tool's ResourceRequirement (requirements or
// hints) against host capacity and returns the grant. Expression-valued
// bounds evaluate against ctx.
func Negotiate(tool *cwl.CommandLineTool, host Host, eval *evaluator.Evaluator, ctx *evaluator.Context) (Allocation, error) {
	alloc := Allocation{Cores: DefaultCores, RAMMiB: DefaultRAMMiB}

	req, required := findResource(tool)
	if req == nil {
		if alloc.RAMMiB > host.RAMMiB {
			alloc.RAMMiB = host.RAMMiB
		}
		return alloc, nil
	}

	coresMin, err := resolveBound(req.CoresMin, DefaultCores, eval, ctx)
	if err != nil {
		return alloc, err
	}
	coresMax, err := resolveBound(req.CoresMax, coresMin, eval, ctx)
	if err != nil {
		return alloc, err
	}
	ramMin, err := resolveBound(req.RAMMin, DefaultRAMMiB, eval, ctx)
	if err != nil {
		return alloc, err
	}
	ramMax, err := resolveBound(req.RAMMax, ramMin, eval, ctx)
	if err != nil {
		return alloc, err
	}

	cores, err := clamp("cores", coresMin, coresMax, int64(host.Cores), required, "")
	if err != nil {
		return alloc, err
	}
	ram, err := clamp("ram", ramMin, ramMax, host.RAMMiB, required, "MiB")
	if err != nil {
		return alloc, err
	}
	alloc.Cores = int(cores)
	alloc.RAMMiB = ram
	return alloc, nil
}

// clamp grants as much as the host covers within [min, max]. A min beyond
// the host fails a requirement but degrades a hint to host capacity.
func clamp(name string, min, max, have int64, required bool, unit string) (int64, error) {
	if min > have {
		if required {
			return 0, &cwl.ResourceUnsatisfiable{
				Resource: name,
				Min:      humanAmount(min, unit),
				Have:     humanAmount(have, unit),
			}
		}
		return have, nil
	}
	grant := max
	if grant > have {
		grant = have
	}
	if grant < min {
		grant = min
	}
	return grant, nil
}

func humanAmount(n int64, unit string) string {
	if unit == "MiB" {
		return humanize.IBytes(uint64(n) << 20)
	}
	return fmt.Sprintf("%d", n)
}

// resolveBound turns a raw bound (number or expression string) into an
// integer, with a fallback when unset.
func resolveBound(raw any, fallback int64, eval *evaluator.Evaluator, ctx *evaluator.Context) (int64, error) {
	switch x := raw.(type) {
	case nil:
		return fallback, nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return eval.EvalInt(cwl.Expression(x), ctx)
	case cwl.Expression:
		return eval.EvalInt(x, ctx)
	default:
		return 0, fmt.Errorf("unsupported resource bound %T", raw)
	}
}

func findResource(tool *cwl.CommandLineTool) (req *cwl.ResourceRequirement, required bool) {
	if r := tool.Requirements.Find("ResourceRequirement"); r != nil {
		return r.(*cwl.ResourceRequirement), true
	}
	if r := tool.Hints.Find("ResourceRequirement"); r != nil {
		if rr, ok := r.(*cwl.ResourceRequirement); ok {
			return rr, false
		}
	}
	return nil, false
}

package contract

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarat-asymmetrica/foldctl/internal/ferr"
)

// Parse reads a `.lll` contract program from r and returns its ordered
// instruction stream. Parsing is purely syntactic: unknown residue
// indices, out-of-range domains, and the like are left for the ruleset
// and runtime packages to reject at execution time.
//
// Grounded on the teacher's parser/pdb_parser.go, which drives a
// bufio.Scanner line-by-line, skips blank/comment lines, and wraps
// malformed lines in a positioned error.
func Parse(r io.Reader) ([]Instruction, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []Instruction
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		inst, err := parseLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, ferr.Wrap(ferr.ParseError, "read contract", err)
	}
	return out, nil
}

// ParseString is a convenience wrapper over Parse for callers holding a
// program already in memory (built-in presets, test fixtures).
func ParseString(program string) ([]Instruction, error) {
	return Parse(strings.NewReader(program))
}

func parseLine(line string, lineNo int) (Instruction, error) {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	args := fields[1:]
	b := base{line: lineNo}

	switch verb {
	case "rotate":
		return parseRotate(args, b)
	case "clash_check":
		return ClashCheck{b}, nil
	case "commit":
		return Commit{b}, nil
	case "rollback":
		return Rollback{b}, nil
	case "span_alias":
		if len(args) < 1 {
			return nil, parseErr(lineNo, "span_alias requires a name argument")
		}
		return SpanAlias{b, args[0]}, nil
	case "ghost":
		on, err := parseOnOff(args, lineNo, "ghost")
		if err != nil {
			return nil, err
		}
		return GhostMode{b, on}, nil
	case "define_domain":
		return parseDefineDomain(args, b)
	case "require_chaperone":
		if len(args) < 1 {
			return nil, parseErr(lineNo, "require_chaperone requires a chaperone name")
		}
		var spanLabel string
		if len(args) >= 2 {
			spanLabel = args[1]
		}
		return RequireChaperone{b, args[0], spanLabel}, nil
	case "add_modification":
		return parseAddModification(args, b)
	case "set_physics_level":
		if len(args) < 1 {
			return nil, parseErr(lineNo, "set_physics_level requires a level argument")
		}
		level := strings.ToLower(args[0])
		switch level {
		case "toy", "coarse", "gb", "full":
		default:
			return nil, parseErr(lineNo, fmt.Sprintf("unknown physics level %q", args[0]))
		}
		return SetPhysicsLevel{b, level}, nil
	case "physics_span":
		on, err := parseOnOff(args, lineNo, "physics_span")
		if err != nil {
			return nil, err
		}
		return PhysicsSpan{b, on}, nil
	default:
		return nil, parseErr(lineNo, fmt.Sprintf("unknown instruction %q", fields[0]))
	}
}

// parseRotate accepts both the positional form ("rotate 5 -12 5") and the
// keyword form ("rotate residue=5 angle=-12 duration=5"); duration
// defaults to 1 when omitted.
func parseRotate(args []string, b base) (Instruction, error) {
	if len(args) > 0 && strings.Contains(args[0], "=") {
		kv, err := parseKeywordArgs(args, b.line)
		if err != nil {
			return nil, err
		}
		residue, err := intArg(kv, "residue", b.line)
		if err != nil {
			return nil, err
		}
		degrees, err := floatArg(kv, "angle", b.line)
		if err != nil {
			return nil, err
		}
		duration := 1
		if v, ok := kv["duration"]; ok {
			duration, err = strconv.Atoi(v)
			if err != nil {
				return nil, parseErr(b.line, fmt.Sprintf("duration %q is not an integer", v))
			}
		}
		return Rotate{b, residue, degrees, duration}, nil
	}

	if len(args) < 2 {
		return nil, parseErr(b.line, "rotate requires residue and angle arguments")
	}
	residue, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, parseErr(b.line, fmt.Sprintf("residue %q is not an integer", args[0]))
	}
	degrees, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, parseErr(b.line, fmt.Sprintf("angle %q is not a number", args[1]))
	}
	duration := 1
	if len(args) >= 3 {
		duration, err = strconv.Atoi(args[2])
		if err != nil {
			return nil, parseErr(b.line, fmt.Sprintf("duration %q is not an integer", args[2]))
		}
	}
	return Rotate{b, residue, degrees, duration}, nil
}

func parseDefineDomain(args []string, b base) (Instruction, error) {
	if len(args) < 2 {
		return nil, parseErr(b.line, "define_domain requires at least start and end residue indices")
	}
	name := ""
	nums := args
	if _, err := strconv.Atoi(args[0]); err != nil {
		name = args[0]
		nums = args[1:]
	}
	if len(nums) < 2 {
		return nil, parseErr(b.line, "define_domain requires start and end residue indices")
	}
	start, err := strconv.Atoi(nums[0])
	if err != nil {
		return nil, parseErr(b.line, fmt.Sprintf("domain start %q is not an integer", nums[0]))
	}
	end, err := strconv.Atoi(nums[1])
	if err != nil {
		return nil, parseErr(b.line, fmt.Sprintf("domain end %q is not an integer", nums[1]))
	}
	return DefineDomain{b, name, start, end}, nil
}

func parseAddModification(args []string, b base) (Instruction, error) {
	if len(args) < 2 {
		return nil, parseErr(b.line, "add_modification requires a kind and a residue reference")
	}
	ref, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, parseErr(b.line, fmt.Sprintf("residue reference %q is not an integer", args[1]))
	}
	return AddModification{b, args[0], ref}, nil
}

func parseOnOff(args []string, lineNo int, verb string) (bool, error) {
	if len(args) < 1 {
		return false, parseErr(lineNo, fmt.Sprintf("%s requires on/off", verb))
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, parseErr(lineNo, fmt.Sprintf("%s argument must be on or off, got %q", verb, args[0]))
	}
}

func parseKeywordArgs(args []string, lineNo int) (map[string]string, error) {
	kv := make(map[string]string, len(args))
	for _, a := range args {
		parts := strings.SplitN(a, "=", 2)
		if len(parts) != 2 {
			return nil, parseErr(lineNo, fmt.Sprintf("malformed keyword argument %q", a))
		}
		kv[strings.ToLower(parts[0])] = parts[1]
	}
	return kv, nil
}

func intArg(kv map[string]string, key string, lineNo int) (int, error) {
	v, ok := kv[key]
	if !ok {
		return 0, parseErr(lineNo, fmt.Sprintf("missing required argument %q", key))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, parseErr(lineNo, fmt.Sprintf("%s %q is not an integer", key, v))
	}
	return n, nil
}

func floatArg(kv map[string]string, key string, lineNo int) (float64, error) {
	v, ok := kv[key]
	if !ok {
		return 0, parseErr(lineNo, fmt.Sprintf("missing required argument %q", key))
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, parseErr(lineNo, fmt.Sprintf("%s %q is not a number", key, v))
	}
	return f, nil
}

func parseErr(lineNo int, detail string) error {
	return ferr.New(ferr.ParseError, fmt.Sprintf("line %d: %s", lineNo, detail))
}

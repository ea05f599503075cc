package container

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"reproserver/internal/connector"
)

const cmdlinePrefix = "cmdline_"

// defaultPath is the PATH handed to every command, since env -i clears
// the container's own environment before gosu steps down (spec §4.2
// step 7). toolsDir is not added to it; gosu is invoked by its full
// staged path instead.
const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// gosuBinary is the name stageTools gives the staged setuid helper.
const gosuBinary = "gosu"

// BuildRunScript assembles the run script from every parameter named
// cmdline_<index>, emitted in ascending index order (spec §4.2 step
// 7). Each command is wrapped so it runs under the recorded working
// directory and environment, stepped down to the recorded uid/gid via
// the gosu helper staged at toolsDir/gosu. Returns an error if no
// cmdline_ parameters are present or an index isn't a valid
// non-negative integer.
func BuildRunScript(params map[string]connector.ParameterInfo, toolsDir string) (string, error) {
	type indexed struct {
		index int
		info  connector.ParameterInfo
	}

	var cmds []indexed
	for name, info := range params {
		if !strings.HasPrefix(name, cmdlinePrefix) {
			continue
		}
		idxStr := strings.TrimPrefix(name, cmdlinePrefix)
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return "", fmt.Errorf("invalid cmdline parameter name %q", name)
		}
		cmds = append(cmds, indexed{index: idx, info: info})
	}

	if len(cmds) == 0 {
		return "", fmt.Errorf("bundle declares no cmdline_<index> parameters")
	}

	sort.Slice(cmds, func(i, j int) bool { return cmds[i].index < cmds[j].index })

	gosu := shellQuote(path.Join(toolsDir, gosuBinary))

	var b strings.Builder
	b.WriteString("set -eu\n")
	for _, c := range cmds {
		workdir := c.info.Workdir
		if workdir == "" {
			workdir = "/"
		}
		b.WriteString("cd ")
		b.WriteString(shellQuote(workdir))
		b.WriteString("\n")

		env := map[string]string{"PATH": defaultPath}
		for k, v := range c.info.Environment {
			env[k] = v
		}
		names := make([]string, 0, len(env))
		for k := range env {
			names = append(names, k)
		}
		sort.Strings(names)

		b.WriteString("env -i")
		for _, name := range names {
			b.WriteString(" ")
			b.WriteString(shellQuote(fmt.Sprintf("%s=%s", name, env[name])))
		}
		b.WriteString(" ")
		b.WriteString(gosu)
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("%d:%d", c.info.UID, c.info.GID))
		b.WriteString(" sh -c ")
		b.WriteString(shellQuote(c.info.Value))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// safeShellChars are the bytes shellQuote leaves unquoted; everything
// else is wrapped in single quotes. Grounded on the original system's
// shell_escape/safe_shell_chars (reproserver/utils.py).
const safeShellChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789@%_-+=:,./"

// shellQuote renders s as a single POSIX shell word, safe to splice
// into the assembled run script.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !strings.ContainsRune(safeShellChars, r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

package dialogue

import (
	"strconv"
	"strings"
)

// normalize prepares a reply for comparison only. Stored user text is never
// normalized.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Choose resolves a 1-based numeric reply against options. It returns the
// zero-based index and the selected option; ok is false for anything that is
// not an integer in [1, len(options)].
func Choose(options []string, reply string) (index int, option string, ok bool) {
	n, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil || n < 1 || n > len(options) {
		return 0, "", false
	}
	return n - 1, options[n-1], true
}

var (
	affirmative = map[string]bool{"sim": true, "s": true, "si": true, "claro": true, "ok": true, "continuar": true}
	negative    = map[string]bool{"não": true, "nao": true, "n": true, "encerrar": true, "sair": true}
)

// yesNo interprets a sim/não reply. "1" and "2" are accepted for prompts that
// list Sim and Não as options.
func yesNo(reply string) (yes bool, ok bool) {
	r := strings.TrimRight(normalize(reply), ".!")
	switch {
	case affirmative[r] || r == "1":
		return true, true
	case negative[r] || r == "2":
		return false, true
	}
	return false, false
}

// blank reports whether a free-text reply carries no content.
func blank(reply string) bool {
	return strings.TrimSpace(reply) == ""
}

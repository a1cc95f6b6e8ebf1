package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// packedRe matches eval(function(p,a,c,k,e,d)...) P.A.C.K.E.R. payloads.
var packedRe = regexp.MustCompile(`(?s)eval\(function\(p,a,c,k,e,[dr]\).*?\.split\('\|'\)[^)]*\)\)`)

const unpackTimeout = 2 * time.Second

// unpackScripts evaluates packed inline scripts and returns their unpacked
// source. Stripping the leading eval leaves an IIFE whose return value is
// the decoded script, so running it in a JS VM yields the plain text the
// page would have executed.
func (e *Engine) unpackScripts(html string) (string, bool) {
	payloads := packedRe.FindAllString(html, -1)
	if len(payloads) == 0 {
		return "", false
	}

	var out strings.Builder
	unpacked := false
	for _, payload := range payloads {
		src := strings.TrimPrefix(payload, "eval")

		vm := goja.New()
		timer := time.AfterFunc(unpackTimeout, func() {
			vm.Interrupt("unpack timeout")
		})
		v, err := vm.RunString(src)
		timer.Stop()
		if err != nil {
			e.log.Debug("failed to unpack script", "error", err)
			continue
		}

		out.WriteString(v.String())
		out.WriteString("\n")
		unpacked = true
	}
	return out.String(), unpacked
}

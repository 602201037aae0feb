// MIT License
//
// Copyright (c) 2025 DaggerTech
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package console

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Console commands typed into the entry line.
const (
	cmdHelp  = "/help"
	cmdClear = "/clear"
	cmdStats = "/stats"
	cmdQuit  = "/quit"
)

var commandNames = []string{cmdHelp, cmdClear, cmdStats, cmdQuit}

const helpText = `commands:
  /help    show this help
  /clear   clear the log
  /stats   show hub depth and drop counts
  /quit    leave the console
anything else is published; start with // to publish a leading '/'`

// maxSuggestDistance bounds how far a typo may be from a known command.
const maxSuggestDistance = 2

// parseEntry splits an entry line into a console command or a payload.
func parseEntry(line string) (command string, payload string, isCommand bool) {
	switch {
	case strings.HasPrefix(line, "//"):
		return "", line[1:], false
	case strings.HasPrefix(line, "/"):
		fields := strings.Fields(line)
		return strings.ToLower(fields[0]), "", true
	default:
		return "", line, false
	}
}

// suggest returns the known command closest to name, if one is close enough.
func suggest(name string) (string, bool) {
	best, bestDist := "", maxSuggestDistance+1
	for _, c := range commandNames {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, best != ""
}

package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/9TreyRP/CryptoScanner/internal/model"
)

// Totals are the running counters shown above every record.
type Totals struct {
	Scanned   int
	Found     int
	Throttled int
	Failed    int
}

// Add folds one record into the totals.
func (t *Totals) Add(rec model.ScanRecord) {
	t.Scanned++
	if rec.Interesting() {
		t.Found++
	}
	for _, r := range rec.Results {
		switch r.Outcome {
		case model.Throttled:
			t.Throttled++
		case model.Failed, model.TimedOut:
			t.Failed++
		}
	}
}

// Console renders records to a terminal. It has no effect on scanning.
type Console struct {
	w     io.Writer
	clear bool

	red    *color.Color
	green  *color.Color
	yellow *color.Color
	white  *color.Color
	blue   *color.Color
}

func NewConsole(w io.Writer, clearScreen bool) *Console {
	return &Console{
		w:      w,
		clear:  clearScreen,
		red:    color.New(color.FgRed),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		white:  color.New(color.FgWhite),
		blue:   color.New(color.FgBlue),
	}
}

func (c *Console) Banner(testMode bool, version string) {
	mode := c.red.Sprint("[LIVE MODE - USE RESPONSIBLY]")
	if testMode {
		mode = c.yellow.Sprint("[TEST MODE - SAFE]")
	}
	line := strings.Repeat("*", 72)
	fmt.Fprintln(c.w, c.green.Sprint(line))
	fmt.Fprintf(c.w, "%s  Multi-chain balance scanner %s  %s\n", c.green.Sprint("*"), version, mode)
	fmt.Fprintf(c.w, "%s  Rate-limited requests with concurrent processing\n", c.green.Sprint("*"))
	fmt.Fprintln(c.w, c.green.Sprint(line))
}

// Render prints one record. Non-success outcomes are labelled so a
// throttled lookup is never mistaken for an empty address.
func (c *Console) Render(rec model.ScanRecord, t Totals) {
	if c.clear {
		fmt.Fprint(c.w, "\033[H\033[2J")
	}
	bar := strings.Repeat("=", 22)
	fmt.Fprintf(c.w, "%s[%s %s %s %s %s %s]%s\n",
		c.red.Sprint(bar),
		c.white.Sprint("Scanned:"), c.yellow.Sprintf("%d", t.Scanned),
		c.white.Sprint("Found:"), c.green.Sprintf("%d", t.Found),
		c.white.Sprint("Throttled/Failed:"), c.yellow.Sprintf("%d/%d", t.Throttled, t.Failed),
		c.red.Sprint(bar))

	for _, r := range rec.Results {
		bal := model.FormatUnits(r.Balance, r.Decimals)
		var status string
		switch {
		case r.Positive():
			bal = c.green.Sprint(bal)
			status = c.green.Sprint("FUNDED")
		case r.Outcome == model.Success:
			status = c.white.Sprint("empty")
		default:
			bal = c.yellow.Sprint(bal)
			status = c.red.Sprint(strings.ToUpper(r.Outcome.String()))
		}
		fmt.Fprintf(c.w, "  | %-3s %s | BAL: %s | %s | %s\n",
			strings.ToUpper(r.Chain.String()), c.blue.Sprintf("%-16s", r.Provider), bal, status, r.Address)
	}
	if rec.Candidate.Label != "" {
		fmt.Fprintf(c.w, "  | Label | %s\n", rec.Candidate.Label)
	}
	fmt.Fprintln(c.w, c.red.Sprint("  "+strings.Repeat("=", 75)))
	if rec.Interesting() {
		fmt.Fprintln(c.w, c.green.Sprint("*** WALLET WITH BALANCE FOUND! ***"))
	}
}

// Summary is printed once when the scan stops.
func (c *Console) Summary(t Totals, reason string) {
	fmt.Fprintf(c.w, "%s Total: %d, Found: %d, Throttled: %d, Failed: %d\n",
		c.yellow.Sprint(reason), t.Scanned, t.Found, t.Throttled, t.Failed)
}

// Package handler handles what the channel reports upwards.
// It subscribes to deliveries and failures and prints them for the user.
package handler

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"bjoernblessin.de/groupstack/sequencing"
	"bjoernblessin.de/groupstack/util/logger"
)

type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Listen prints events in the background until both channels are closed.
func (p *Printer) Listen(deliveries <-chan sequencing.Delivery, failures <-chan sequencing.Failure) {
	go p.Run(deliveries, failures)
}

// Run prints events until both channels are closed.
func (p *Printer) Run(deliveries <-chan sequencing.Delivery, failures <-chan sequencing.Failure) {
	for deliveries != nil || failures != nil {
		select {
		case d, ok := <-deliveries:
			if !ok {
				deliveries = nil
				continue
			}
			p.printDelivery(d)
		case f, ok := <-failures:
			if !ok {
				failures = nil
				continue
			}
			p.printFailure(f)
		}
	}
}

func (p *Printer) printDelivery(d sequencing.Delivery) {
	if d.Passthrough {
		logger.Infof("RAW RECEIVED %v %d bytes", d.From, len(d.Payload))
		fmt.Fprintf(p.out, "RAW %v: %s\n", d.From, describe(d.Payload))
		return
	}

	logger.Infof("MSG RECEIVED %v %d", d.From, d.Seq)
	fmt.Fprintf(p.out, "MSG %v: %s\n", d.From, describe(d.Payload))
}

func (p *Printer) printFailure(f sequencing.Failure) {
	fmt.Fprintf(p.out, "FAILED %v: %s (%v)\n", f.Dest, describe(f.Payload), f.Err)
}

// describe returns printable text as is and a size summary for anything else.
func describe(payload []byte) string {
	if utf8.Valid(payload) && strings.IndexFunc(string(payload), isControl) < 0 {
		return string(payload)
	}
	return fmt.Sprintf("<%d bytes>", len(payload))
}

func isControl(r rune) bool {
	return unicode.IsControl(r) && r != '\t'
}

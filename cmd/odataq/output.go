package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// pager pauses the output every size records until the user presses Enter.
type pager struct {
	prompt io.Writer
	in     *bufio.Reader
	size   int
}

func newPager(prompt io.Writer, in io.Reader, size int) *pager {
	return &pager{prompt: prompt, in: bufio.NewReader(in), size: size}
}

// next reports whether printing should go on after n records.
func (p *pager) next(n int) (bool, error) {
	if p.size <= 0 || n%p.size != 0 {
		return true, nil
	}
	if _, err := fmt.Fprint(p.prompt, "Press Enter to continue, or type 'q' to quit: "); err != nil {
		return false, err
	}
	input, err := p.in.ReadString('\n')
	if err != nil {
		// No more input: print the rest.
		if errors.Is(err, io.EOF) {
			p.size = 0
			return true, nil
		}
		return false, err
	}
	return !strings.EqualFold(strings.TrimSpace(input), "q"), nil
}

// printRecords writes the records of seq as one JSON array. Without a pager
// the whole sequence is read first, so a failed fetch prints nothing; with
// one, records stream out and the array is closed even when the user quits.
func printRecords[T any](w io.Writer, seq iter.Seq2[T, error], marshal func(T) ([]byte, error), pg *pager) error {
	var (
		entries [][]byte
		out     = arrayWriter{w: w}
		iterErr error
	)
	if pg != nil {
		out.open()
	}
	for value, err := range seq {
		if err != nil {
			iterErr = err
			break
		}
		data, err := marshal(value)
		if err != nil {
			iterErr = err
			break
		}
		if pg == nil {
			entries = append(entries, data)
			continue
		}
		out.add(data)
		if out.err != nil {
			return out.err
		}
		more, err := pg.next(out.n)
		if err != nil {
			iterErr = err
			break
		}
		if !more {
			break
		}
	}
	if pg == nil {
		if iterErr != nil {
			return iterErr
		}
		out.open()
		for _, e := range entries {
			out.add(e)
		}
	}
	out.close()
	if iterErr != nil {
		return iterErr
	}
	return out.err
}

// arrayWriter writes JSON array elements one per line, keeping the first
// write error.
type arrayWriter struct {
	w   io.Writer
	n   int
	err error
}

func (a *arrayWriter) open() { a.write("[\n") }

func (a *arrayWriter) add(entry []byte) {
	if a.n > 0 {
		a.write(",\n")
	}
	a.write(string(entry) + "\n")
	a.n++
}

func (a *arrayWriter) close() { a.write("]\n") }

func (a *arrayWriter) write(s string) {
	if a.err != nil {
		return
	}
	_, a.err = io.WriteString(a.w, s)
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// promptCounts asks for the producer and consumer counts on in. Each answer
// must be a positive integer; blank or invalid answers are asked again.
func promptCounts(in *bufio.Reader, out io.Writer) (producers, consumers int, err error) {
	if producers, err = promptInt(in, out, "Number of producers (sources): "); err != nil {
		return 0, 0, err
	}
	if consumers, err = promptInt(in, out, "Number of consumers (queues): "); err != nil {
		return 0, 0, err
	}
	return producers, consumers, nil
}

func promptInt(in *bufio.Reader, out io.Writer, question string) (int, error) {
	for {
		fmt.Fprint(out, question)
		line, err := in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer != "" {
			n, convErr := strconv.Atoi(answer)
			if convErr == nil && n > 0 {
				return n, nil
			}
			fmt.Fprintf(out, "%q is not a positive integer\n", answer)
		}
		if err != nil {
			if err == io.EOF {
				return 0, fmt.Errorf("prompt: input ended before an answer was given")
			}
			return 0, fmt.Errorf("prompt: %w", err)
		}
	}
}

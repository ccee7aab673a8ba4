package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const lineLen = 69

// Parse reads TLE data in either 3-line (name + two lines) or bare 2-line
// form. Malformed entries are skipped with a warning.
func Parse(r io.Reader, logger *slog.Logger) ([]Element, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r\n "); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var out []Element
	for i := 0; i < len(lines); {
		var name string
		if !strings.HasPrefix(lines[i], "1 ") {
			name = lines[i]
			i++
		}
		if i+1 >= len(lines) {
			logger.Warn("skipping truncated TLE entry", "line_index", i, "name", name)
			break
		}
		if !strings.HasPrefix(lines[i], "1 ") || !strings.HasPrefix(lines[i+1], "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		e, err := ParseElement(name, lines[i], lines[i+1])
		i += 2
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "name", name, "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ParseElement validates a single element set and extracts its catalog
// number and epoch. Without a name the NORAD ID is used.
func ParseElement(name, line1, line2 string) (Element, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if err := checkLine(line1, '1'); err != nil {
		return Element{}, fmt.Errorf("line 1: %w", err)
	}
	if err := checkLine(line2, '2'); err != nil {
		return Element{}, fmt.Errorf("line 2: %w", err)
	}

	id, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return Element{}, fmt.Errorf("invalid NORAD ID %q", line1[2:7])
	}
	if id2, err := strconv.Atoi(strings.TrimSpace(line2[2:7])); err != nil || id2 != id {
		return Element{}, fmt.Errorf("line 2 NORAD ID %q does not match %d", line2[2:7], id)
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return Element{}, err
	}

	name = strings.TrimSpace(strings.TrimPrefix(name, "0 "))
	if name == "" {
		name = strconv.Itoa(id)
	}
	return Element{NORADID: id, Name: name, Epoch: epoch, Line1: line1, Line2: line2}, nil
}

func checkLine(line string, lineNo byte) error {
	if len(line) != lineLen {
		return fmt.Errorf("length %d, expected %d", len(line), lineLen)
	}
	if line[0] != lineNo || line[1] != ' ' {
		return fmt.Errorf("must start with %q", string(lineNo)+" ")
	}
	want := int(line[lineLen-1] - '0')
	if got := Checksum(line); got != want {
		return fmt.Errorf("%w: computed %d, line says %c", ErrChecksum, got, line[lineLen-1])
	}
	return nil
}

// Checksum computes the modulo-10 checksum over the first 68 columns: digits
// count their value, minus signs count one.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < lineLen-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// parseEpoch converts YYDDD.DDDDDDDD to a UTC time. Years 57-99 are 19xx.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch %q too short", s)
	}
	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}
	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", day)
	}
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}

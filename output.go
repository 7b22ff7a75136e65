package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sandflysecurity/sandfly-entropystats/pkg/entropy"
	"github.com/sandflysecurity/sandfly-entropystats/pkg/statistics"
)

type outputFormat uint8

const (
	formatTable outputFormat = iota
	formatJSON
	formatCSV
)

func (f outputFormat) String() string {
	switch f {
	case formatJSON:
		return "json"
	case formatCSV:
		return "csv"
	default:
		return "table"
	}
}

func parseFormat(s string) (outputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return formatTable, nil
	case "json":
		return formatJSON, nil
	case "csv":
		return formatCSV, nil
	default:
		return formatTable, fmt.Errorf("unknown output format %q (want table, json, or csv)", s)
	}
}

// statsReport is everything the stats command displays.
type statsReport struct {
	Summary      statistics.Summary    `json:"stats"`
	Outliers     []entropy.FileEntropy `json:"outliers"`
	showOutliers bool
}

// renderer is one presentation format for both commands.
type renderer interface {
	scan(w io.Writer, r *Results) error
	stats(w io.Writer, rep statsReport) error
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', constFloatPrecision, 64)
}

type tableRenderer struct {
	hashers []HashType
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
}

func (t tableRenderer) scan(w io.Writer, r *Results) error {
	tw := newTable(w)
	header := []string{"PATH", "ENTROPY"}
	for _, ht := range t.hashers {
		header = append(header, strings.ToUpper(ht.String()))
	}
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, f := range r.Files {
		row := []string{f.Path, fmtFloat(f.Entropy)}
		for _, ht := range t.hashers {
			row = append(row, f.Checksums.Get(ht))
		}
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func writeEntropyTable(w io.Writer, entries []entropy.FileEntropy) error {
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "PATH\tENTROPY")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.Path, fmtFloat(e.Entropy))
	}
	return tw.Flush()
}

func (t tableRenderer) stats(w io.Writer, rep statsReport) error {
	tw := newTable(w)
	s := rep.Summary
	_, _ = fmt.Fprintln(tw, "PATH\tTOTAL\tMEAN\tMEDIAN\tVARIANCE")
	_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", s.Target, s.Total, fmtFloat(s.Mean), fmtFloat(s.Median), fmtFloat(s.Variance))
	if err := tw.Flush(); err != nil {
		return err
	}
	if !rep.showOutliers {
		return nil
	}
	_, _ = io.WriteString(w, "\n========\nOutliers\n========\n\n")
	return writeEntropyTable(w, rep.Outliers)
}

type jsonRenderer struct{}

func (jsonRenderer) scan(w io.Writer, r *Results) error {
	dat, err := r.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(append(dat, '\n'))
	return err
}

func (jsonRenderer) stats(w io.Writer, rep statsReport) error {
	if !rep.showOutliers || rep.Outliers == nil {
		rep.Outliers = make([]entropy.FileEntropy, 0)
	}
	dat, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(dat, '\n'))
	return err
}

type csvRenderer struct {
	delim string
}

func (c csvRenderer) scan(w io.Writer, r *Results) error {
	if c.delim != "" {
		r = r.WithDelimiter(c.delim)
	}
	dat, err := r.MarshalCSV()
	if err != nil {
		return err
	}
	_, err = w.Write(dat)
	return err
}

func (c csvRenderer) stats(w io.Writer, rep statsReport) error {
	schema, outlierSchema := statsCSVHeader, defCSVHeader
	if c.delim != "" {
		schema, outlierSchema = schema.withDelimiter(c.delim), outlierSchema.withDelimiter(c.delim)
	}

	buf := new(bytes.Buffer)
	_, _ = buf.Write(schema.header())
	_, _ = buf.WriteString("\n")
	row, err := schema.parse(rep.Summary)
	if err != nil {
		return err
	}
	_, _ = buf.Write(row)

	if rep.showOutliers {
		_, _ = buf.WriteString("\n=========\nOutliers\n=========\n\n")
		_, _ = buf.Write(outlierSchema.header())
		_, _ = buf.WriteString("\n")
		for _, o := range rep.Outliers {
			if row, err = outlierSchema.parse(o); err != nil {
				return err
			}
			_, _ = buf.Write(row)
		}
	}

	_, err = w.Write(buf.Bytes())
	return err
}

// rendererFor returns the renderer for the configured output format.
func (cfg *config) rendererFor() renderer {
	switch cfg.outCfg.format {
	case formatTable:
		return tableRenderer{hashers: cfg.hashers}
	case formatCSV:
		return csvRenderer{delim: cfg.outCfg.delimChar}
	default:
		return jsonRenderer{}
	}
}

// output renders into a buffer first so a failed render never leaves a partial output file.
func (cfg *config) output(stdout io.Writer, render func(io.Writer) error) error {
	buf := new(bytes.Buffer)
	if err := render(buf); err != nil {
		return fmt.Errorf("error rendering %s output: %w", cfg.outCfg.format, err)
	}
	if cfg.outCfg.outputFile != "" {
		if err := os.WriteFile(cfg.outCfg.outputFile, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("error writing output file (%s): %w", cfg.outCfg.outputFile, err)
		}
		cfg.log.Info().Str("file", cfg.outCfg.outputFile).Msg("results written")
		return nil
	}
	_, err := stdout.Write(buf.Bytes())
	return err
}

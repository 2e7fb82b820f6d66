package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/wordcrawl/pkg/models"
)

const (
	WordsFilename   = "words.tsv"
	SummaryFilename = "summary.yaml"
)

// Sorted returns every word in snapshot ordered by count descending, then word ascending
func Sorted(snapshot map[string]int64) []models.WordCount {
	rows := make([]models.WordCount, 0, len(snapshot))
	for word, count := range snapshot {
		rows = append(rows, models.WordCount{Word: word, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Word < rows[j].Word
	})
	return rows
}

// TopWords returns the n most frequent words. n <= 0 returns nil.
func TopWords(snapshot map[string]int64, n int) []models.WordCount {
	if n <= 0 {
		return nil
	}
	rows := Sorted(snapshot)
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Write creates dir if needed and writes words.tsv and summary.yaml into it
func Write(dir string, snapshot map[string]int64, meta models.CrawlSummary, log *logrus.Entry) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output dir '%s': %w", dir, err)
	}

	wordsPath := filepath.Join(dir, WordsFilename)
	if err := writeWordsTSV(wordsPath, snapshot); err != nil {
		log.Errorf("Failed to write word table '%s': %v", wordsPath, err)
		return err
	}
	log.Infof("Wrote %d words to %s", len(snapshot), wordsPath)

	summaryPath := filepath.Join(dir, SummaryFilename)
	yamlData, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, yamlData, 0644); err != nil {
		log.Errorf("Failed to write summary YAML file '%s': %v", summaryPath, err)
		return fmt.Errorf("failed to write summary YAML file '%s': %w", summaryPath, err)
	}
	log.Infof("Wrote crawl summary to %s", summaryPath)
	return nil
}

func writeWordsTSV(path string, snapshot map[string]int64) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create word table '%s': %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if _, err := w.WriteString("word\tcount\n"); err != nil {
		return fmt.Errorf("write word table '%s': %w", path, err)
	}
	for _, row := range Sorted(snapshot) {
		line := row.Word + "\t" + strconv.FormatInt(row.Count, 10) + "\n"
		if _, err := w.WriteString(line); err != nil {
			return fmt.Errorf("write word table '%s': %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush word table '%s': %w", path, err)
	}
	return file.Sync()
}

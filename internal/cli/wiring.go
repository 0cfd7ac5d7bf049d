package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/agent"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/archive"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/config"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/history"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/llm"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/models"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/rules"
	"github.com/ChaitanyaYeole02/gmail-cleaner/internal/scoring"
	"github.com/rs/zerolog/log"
)

// scannerSetup is everything a scan needs besides the mailbox
type scannerSetup struct {
	opts       agent.Options
	useHistory bool
}

// newScanner wires the scorer, the optional LLM, history and archive around a mailbox.
// The returned cleanup closes whatever was opened.
func newScanner(ctx context.Context, cfg *config.Config, mailbox agent.Mailbox, setup scannerSetup) (*agent.Scanner, func()) {
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Debug().Err(err).Msg("Close failed")
			}
		}
	}

	scorer := scoring.NewScorer(scoring.Options{
		Threshold:        cfg.MatchThreshold,
		Inclusive:        cfg.ThresholdInclusive,
		MinKeywordLength: cfg.MinKeywordLength,
	})
	scanner := agent.NewScanner(mailbox, scorer, setup.opts)

	if !cfg.LLMEnabled() {
		log.Info().Msg("No LLM provider configured, prompts are parsed locally")
	} else if gen, err := llm.FromConfig(ctx, cfg); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize LLM client, continuing without it")
	} else if gen != nil {
		closers = append(closers, gen)
		scanner.SetCategorizer(rules.NewCategorizer(gen, cfg.DeleteLabel, cfg.RetryBackoff))
		log.Info().Str("provider", gen.Name()).Msg("LLM enabled")
	}

	if setup.useHistory && cfg.HistoryDBPath != "" {
		store, err := history.Open(cfg.HistoryDBPath)
		if err != nil {
			log.Warn().Err(err).Msg("History disabled")
		} else {
			closers = append(closers, store)
			scanner.SetHistory(store)
		}
	}

	if cfg.SaveDir != "" {
		scanner.SetArchive(archive.NewStore(cfg.SaveDir))
		log.Info().Str("dir", cfg.SaveDir).Msg("Saving PDF attachments")
	}

	scanner.SetProgressCallback(func(current, total int, message string) {
		log.Debug().Int("current", current).Int("total", total).Msg(message)
	})

	return scanner, cleanup
}

// loadRulesFile reads a JSON array of rules, the format printed by the rules command
func loadRulesFile(path string) ([]models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var ruleSet []models.Rule
	if err := json.Unmarshal(data, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	if len(ruleSet) == 0 {
		return nil, errors.New("rules file contains no rules")
	}
	return ruleSet, nil
}

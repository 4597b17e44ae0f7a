package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/formpilot/formpilot/internal/answergen"
	"github.com/formpilot/formpilot/internal/domain"
	"github.com/formpilot/formpilot/internal/engine"
	"github.com/formpilot/formpilot/internal/matcher"
	"github.com/formpilot/formpilot/internal/resolver"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

func main() {
	godotenv.Load()

	formURL := flag.String("url", "", "Form URL to fill")
	profilePath := flag.String("profile", "profile.json", "Path to profile JSON file")
	autoSubmit := flag.Bool("auto-submit", false, "Submit the form after filling")
	headless := flag.Bool("headless", true, "Run the browser headless")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall run timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")

	flag.Parse()

	if *formURL == "" {
		red.Println("✗ -url is required")
		flag.Usage()
		os.Exit(1)
	}

	var logger *zap.Logger
	if *verbose {
		logger, _ = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"/dev/null"}
		logger, _ = cfg.Build()
	}
	defer logger.Sync()

	profile, err := loadProfile(*profilePath)
	if err != nil {
		red.Printf("✗ Failed to load profile: %v\n", err)
		os.Exit(1)
	}

	printBanner()
	fmt.Printf("Form:    %s\n", *formURL)
	fmt.Printf("Profile: %s (%s)\n", *profilePath, profile.FullName)
	if *autoSubmit {
		yellow.Println("Submit:  enabled")
	} else {
		fmt.Println("Submit:  disabled (dry fill)")
	}
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	eng, closeDriver, err := buildEngine(ctx, *headless, logger)
	if err != nil {
		red.Printf("✗ Failed to start browser: %v\n", err)
		os.Exit(1)
	}
	defer closeDriver()

	report := runWithProgress(ctx, eng, engine.FillRequest{
		RunID:      uuid.NewString(),
		FormURL:    *formURL,
		AutoSubmit: *autoSubmit,
		Profile:    profile,
		Learned:    domain.LearnedSnapshot{},
	})

	printReport(report)

	if report.Status != domain.RunStatusCompleted {
		os.Exit(1)
	}
}

// loadProfile reads a domain.Profile from a JSON file.
func loadProfile(path string) (domain.Profile, error) {
	var profile domain.Profile

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, err
	}
	if err := json.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("parsing %s: %w", path, err)
	}
	if profile.FullName == "" {
		return profile, fmt.Errorf("profile in %s has no full_name", path)
	}
	return profile, nil
}

// buildEngine wires the matcher, generator, resolver and browser driver. The
// matcher and generator pick their mode from the environment the same way the
// API server does.
func buildEngine(ctx context.Context, headless bool, logger *zap.Logger) (*engine.Engine, func(), error) {
	var questionMatcher matcher.Matcher
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		embCfg := matcher.DefaultEmbeddingConfig()
		embCfg.APIKey = apiKey
		embedder := matcher.NewEmbeddingService(embCfg, nil, nil, logger)

		m, err := matcher.NewEmbeddingMatcher(ctx, embedder, matcher.DefaultThreshold, logger)
		if err != nil {
			yellow.Println("⚠ Embedding matcher unavailable, using keyword matching")
			questionMatcher = matcher.NewKeywordMatcher(matcher.DefaultThreshold)
		} else {
			questionMatcher = m
		}
	} else {
		dim.Println("No OPENAI_API_KEY set, using keyword matching")
		questionMatcher = matcher.NewKeywordMatcher(matcher.DefaultThreshold)
	}

	var generator answergen.Generator = answergen.NewTemplateGenerator()
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		claudeCfg := answergen.DefaultClaudeConfig()
		claudeCfg.APIKey = apiKey
		claude, err := answergen.NewClaudeGenerator(claudeCfg, nil, logger)
		if err == nil {
			generator = answergen.WithFallback(claude, generator, logger)
		}
	} else {
		dim.Println("No ANTHROPIC_API_KEY set, using template answers")
	}

	res := resolver.New(questionMatcher, generator, logger)

	driver, err := engine.NewPlaywrightDriver(engine.DriverOptions{Headless: headless})
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(driver, res, engine.DefaultConfig(), logger)
	return eng, func() { driver.Close() }, nil
}

// runWithProgress executes the fill while animating a spinner.
func runWithProgress(ctx context.Context, eng *engine.Engine, req engine.FillRequest) *domain.RunReport {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("   Filling form..."),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(40),
	)

	done := make(chan *domain.RunReport, 1)
	go func() {
		done <- eng.Run(ctx, req)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case report := <-done:
			bar.Finish()
			fmt.Println()
			return report
		case <-ticker.C:
			bar.Add(1)
		}
	}
}

func printReport(report *domain.RunReport) {
	fmt.Println()
	if report.Status == domain.RunStatusCompleted {
		green.Printf("✓ Run completed: %s\n", report.FormTitle)
	} else {
		red.Printf("✗ Run failed: %s\n", report.ErrorMessage)
	}

	fmt.Printf("   Questions detected: %d\n", report.QuestionsDetected)
	fmt.Printf("   Questions filled:   %d\n", report.QuestionsFilled)
	fmt.Printf("   AI answers used:    %d\n", report.AIAnswersUsed)
	if report.AutoSubmitted {
		green.Println("   Form submitted")
	}
	if report.ScreenshotURI != "" {
		fmt.Printf("   Screenshot: %s\n", report.ScreenshotURI)
	}

	if len(report.FillLog) == 0 {
		return
	}

	fmt.Println()
	bold.Println("   Fill log:")
	for _, entry := range report.FillLog {
		marker := green.Sprint("✓")
		if entry.Status != domain.StatusFilled {
			if domain.IsErrorStatus(entry.Status) {
				marker = red.Sprint("✗")
			} else {
				marker = yellow.Sprint("-")
			}
		}
		fmt.Printf("   %s %s\n", marker, entry.Question)
		dim.Printf("       %s · %s · %q\n", entry.FieldType, entry.Source, entry.Answer)
	}

	if len(report.NewMappings) > 0 {
		fmt.Println()
		cyan.Printf("   Learned %d new mappings this run\n", len(report.NewMappings))
	}
}

func printBanner() {
	cyan.Println(`
  ┌─────────────────────────────────────┐
  │  FormPilot · automated form filler  │
  └─────────────────────────────────────┘`)
}

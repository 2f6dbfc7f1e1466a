// Coverage gate for fleetmon.
//
// Runs the test suite with coverage, prints a per-package summary and fails
// when total coverage drops below the floor in coverage_required.txt. The
// floor ratchets upward when coverage improves unless -no-ratchet is set.
//
// Usage:
//
//	go run ./scripts/coverage [-no-ratchet] [-html]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// generatedPaths are excluded from the profile.
var generatedPaths = []string{"/docs/swagger/"}

func main() {
	noRatchet := flag.Bool("no-ratchet", false, "do not raise the floor when coverage improves")
	html := flag.Bool("html", false, "also write an HTML report")
	flag.Parse()

	root := findProjectRoot()
	floorFile := filepath.Join(findScriptDir(), "coverage_required.txt")
	reportDir := filepath.Join(root, "target", "reports")
	if err := os.MkdirAll(reportDir, 0o755); err != nil {
		log.Fatalf("creating report directory: %v", err)
	}

	floor, err := readFloor(floorFile)
	if err != nil {
		log.Fatalf("reading coverage floor: %v", err)
	}

	profile := filepath.Join(reportDir, "coverage.out")
	filtered := filepath.Join(reportDir, "coverage-filtered.out")

	if err := goCmd(root, "test", "./internal/...", "./cmd/...", "-count=1", "-race", "-coverprofile="+profile).Run(); err != nil {
		log.Fatalf("tests failed: %v", err)
	}
	if err := filterProfile(profile, filtered); err != nil {
		log.Fatalf("filtering coverage profile: %v", err)
	}

	out, err := goCmd(root, "tool", "cover", "-func="+filtered).Output()
	if err != nil {
		log.Fatalf("generating coverage report: %v", err)
	}
	funcs := string(out)

	total, err := totalCoverage(funcs)
	if err != nil {
		log.Fatalf("extracting total coverage: %v", err)
	}

	printPackageSummary(funcs)
	fmt.Printf("\nTotal coverage: %.1f%%\nRequired:       %d%%\n", total, floor)

	switch got := int(total); {
	case got < floor:
		fmt.Printf("\nCoverage %d%% is below the %d%% floor\n", got, floor)
		os.Exit(1)
	case got > floor && !*noRatchet:
		fmt.Printf("Raising floor to %d%%\n", got)
		if err := os.WriteFile(floorFile, []byte(strconv.Itoa(got)+"\n"), 0o644); err != nil {
			log.Fatalf("updating coverage floor: %v", err)
		}
	}

	if *html {
		report := filepath.Join(reportDir, "coverage.html")
		if err := goCmd(root, "tool", "cover", "-html="+filtered, "-o", report).Run(); err != nil {
			fmt.Printf("Warning: could not generate HTML report: %v\n", err)
		} else {
			fmt.Printf("HTML coverage report: %s\n", report)
		}
	}
}

func goCmd(dir string, args ...string) *exec.Cmd {
	cmd := exec.Command("go", args...)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr
	if args[0] == "test" {
		cmd.Stdout = os.Stdout
	}
	return cmd
}

// totalCoverage reads the "total:" line of `go tool cover -func` output.
func totalCoverage(funcs string) (float64, error) {
	for _, line := range strings.Split(funcs, "\n") {
		if !strings.HasPrefix(line, "total:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return 0, fmt.Errorf("unexpected total line: %s", line)
		}
		return strconv.ParseFloat(strings.TrimSuffix(fields[len(fields)-1], "%"), 64)
	}
	return 0, fmt.Errorf("total coverage not found in output")
}

// printPackageSummary averages per-function coverage by package directory.
func printPackageSummary(funcs string) {
	type acc struct {
		sum float64
		n   int
	}
	pkgs := map[string]*acc{}
	for _, line := range strings.Split(funcs, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] == "total:" {
			continue
		}
		file, _, _ := strings.Cut(fields[0], ":")
		pct, err := strconv.ParseFloat(strings.TrimSuffix(fields[len(fields)-1], "%"), 64)
		if err != nil {
			continue
		}
		dir := filepath.Dir(file)
		if pkgs[dir] == nil {
			pkgs[dir] = &acc{}
		}
		pkgs[dir].sum += pct
		pkgs[dir].n++
	}

	names := make([]string, 0, len(pkgs))
	for name := range pkgs {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nCoverage by package (mean over functions):")
	for _, name := range names {
		a := pkgs[name]
		fmt.Printf("  %-60s %5.1f%%\n", name, a.sum/float64(a.n))
	}
}

func readFloor(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	val, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("parsing coverage floor from %s: %w", path, err)
	}
	return val, nil
}

// filterProfile drops generated packages from a coverage profile.
func filterProfile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	var kept []string
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		if !isGenerated(line) {
			kept = append(kept, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	return os.WriteFile(dst, []byte(strings.Join(kept, "\n")+"\n"), 0o644)
}

func isGenerated(line string) bool {
	for _, p := range generatedPaths {
		if strings.Contains(line, p) {
			return true
		}
	}
	return false
}

func findScriptDir() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		log.Fatal("could not determine script directory")
	}
	return filepath.Dir(filename)
}

func findProjectRoot() string {
	dir := findScriptDir()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			log.Fatal("could not find project root (no go.mod found)")
		}
		dir = parent
	}
}

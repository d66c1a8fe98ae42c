// Command pyramid prints the ascension pyramid for a set of inputs, either
// computed locally from a settings file or fetched from a running server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/talgya/ascension/internal/ascension"
	"github.com/talgya/ascension/internal/settings"
)

func main() {
	var (
		settingsPath = flag.String("settings", "", "population settings YAML (default: bundled table)")
		occident     = flag.Float64("occident", 0, "peasant houses")
		orient       = flag.Float64("orient", 0, "nomad houses")
		beggars      = flag.Float64("beggars", 0, "beggar count")
		beggarLvl    = flag.Int("beggar-lvl", 0, "Beggar Prince level")
		envoys       = flag.Float64("envoys", 0, "envoy count")
		envoyLvl     = flag.Int("envoy-lvl", 0, "Envoy's Favour level")
		apiURL       = flag.String("api", "", "fetch the stored pyramid from this server instead of computing locally")
		island       = flag.String("island", "", "island id to fetch (with -api)")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	var (
		p   ascension.Pyramid
		err error
	)
	if *apiURL != "" {
		if *island == "" {
			fmt.Fprintln(os.Stderr, "-island is required with -api")
			os.Exit(2)
		}
		p, err = fetch(*apiURL, *island)
	} else {
		st := ascension.State{
			Occident:  *occident,
			Orient:    *orient,
			Beggars:   *beggars,
			BeggarLvl: *beggarLvl,
			Envoys:    *envoys,
			EnvoyLvl:  *envoyLvl,
		}
		p, err = compute(*settingsPath, st)
	}
	if err != nil {
		slog.Error("pyramid failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("Occident")
	render(os.Stdout, p.Occident)
	fmt.Println()
	fmt.Println("Orient")
	render(os.Stdout, p.Orient)
}

func compute(settingsPath string, st ascension.State) (ascension.Pyramid, error) {
	cfg, err := settings.Load(settingsPath)
	if err != nil {
		return ascension.Pyramid{}, err
	}
	if err := st.Validate(cfg); err != nil {
		return ascension.Pyramid{}, err
	}
	return ascension.ComputePyramid(cfg, st, ascension.PopRate)
}

// fetch reads the stored pyramid (lowest level first) for an island.
func fetch(apiURL, island string) (ascension.Pyramid, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	u := strings.TrimRight(apiURL, "/") + "/api/v1/ascension/" + url.PathEscape(island)
	resp, err := client.Get(u)
	if err != nil {
		return ascension.Pyramid{}, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ascension.Pyramid{}, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	var p ascension.Pyramid
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return ascension.Pyramid{}, fmt.Errorf("decode pyramid: %w", err)
	}
	return p, nil
}

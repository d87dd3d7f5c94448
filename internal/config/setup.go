package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration of the
// ambient stack (the core engine itself needs no setup: its defaults are
// the spec §6 values).
func RunSetupWizard(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║              agql - First Run Setup          ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Println("║  Configure the REST facade and telemetry.    ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── REST Facade ──")
	cfg.App.API.ListenAddr = promptString(reader, "Listen address", cfg.App.API.ListenAddr)

	fmt.Println()
	fmt.Println("── Audit Store ──")
	cfg.App.Store.Path = promptString(reader, "sqlite audit log path", cfg.App.Store.Path)

	fmt.Println()
	fmt.Println("── MQTT Telemetry ──")
	cfg.App.MQTT.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.App.MQTT.Enabled)
	if cfg.App.MQTT.Enabled {
		cfg.App.MQTT.BrokerURL = promptString(reader, "Broker URL", cfg.App.MQTT.BrokerURL)
		cfg.App.MQTT.Port = promptInt(reader, "Broker port", cfg.App.MQTT.Port)
	}

	fmt.Println()
	fmt.Println("── Webhook Alerting ──")
	cfg.App.Alert.Enabled = promptBool(reader, "Enable webhook alerts on RCON auth failure", cfg.App.Alert.Enabled)
	if cfg.App.Alert.Enabled {
		cfg.App.Alert.WebhookURL = promptString(reader, "Webhook URL", cfg.App.Alert.WebhookURL)
	}

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return RunSetupWizard(cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved successfully!")
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}

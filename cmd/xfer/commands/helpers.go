package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
)

const (
	addressArgDesc = `Address of the xfer server. Accepted formats:
  - 127.0.0.1:8080
  - [::1]:8080
  - somedomain.com:8080
	`
	tuiStyleFlagDesc  = "Style of the tui (rich|raw)"
	transportFlagDesc = "Transport used to reach the server (tcp|ws)"

	minPort = 1024
	maxPort = 65535
)

var validate = validator.New()

var (
	ErrInvalidAddress = errors.New("invalid address provided")
	ErrInvalidPort    = fmt.Errorf("port must be within %d-%d", minPort, maxPort)
	ErrInvalidChoice  = errors.New("invalid choice")
)

// validateAddress validates a hostname or IP together with a port.
func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return ErrInvalidAddress
	}
	if validate.Var(host, "ip") != nil && validate.Var(host, "hostname") != nil {
		return ErrInvalidAddress
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return ErrInvalidAddress
	}
	return validatePort(p)
}

// validatePort accepts unprivileged ports only.
func validatePort(port int) error {
	if port < minPort || port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, port)
	}
	return nil
}

func validateChoice(key string, choices []string) error {
	value := viper.GetString(key)
	if !slices.Contains(choices, value) {
		return fmt.Errorf("%w: %s must be one of (%s), got %q", ErrInvalidChoice, key, strings.Join(choices, "|"), value)
	}
	return nil
}

// confirm asks a yes/no question on out and reads the answer from in. Anything but y/yes is a no.
func confirm(in *bufio.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func setupLoggingFromViper(cmd string) (*os.File, error) {
	if viper.GetBool("verbose") {
		f, err := tea.LogToFile(fmt.Sprintf(".xfer-%s.log", cmd), fmt.Sprintf("xfer-%s: \n", cmd))
		if err != nil {
			return nil, fmt.Errorf("could not log to the provided file: %w", err)
		}
		return f, nil
	}
	log.SetOutput(io.Discard)
	return nil, nil
}

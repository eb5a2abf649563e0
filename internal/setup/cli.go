package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// CLI implements the "setup" subcommand of the stdio server.
type CLI struct {
	DataDir    string // default data directory
	ConfigPath string // overrides ClientConfigPath when set
	out        io.Writer
	in         *bufio.Reader
}

// NewCLI creates a CLI writing to stdout and prompting on stdin.
func NewCLI(dataDir string) *CLI {
	return &CLI{DataDir: dataDir, out: os.Stdout, in: bufio.NewReader(os.Stdin)}
}

// Run dispatches args[0].
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		c.help()
		return nil
	}

	switch args[0] {
	case "client":
		return c.register(args[1:])
	case "seed":
		return c.seed()
	case "status":
		return c.status()
	case "help", "--help", "-h":
		c.help()
		return nil
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		c.help()
		return nil
	}
}

func (c *CLI) help() {
	fmt.Fprint(c.out, `PharmaTrace candidate search MCP server setup

Usage:
  mcp-server-lite setup <command> [options]

Commands:
  client   Register this binary with the desktop MCP client
           --binary <path>    server binary (default: this executable)
           --data-dir <path>  data directory passed as PHARMATRACE_DATA_DIR
           -y                 do not ask for confirmation
  seed     Write a sample seed.json into the data directory
  status   Show registration and data directory status
`)
}

func (c *CLI) configPath() (string, error) {
	if c.ConfigPath != "" {
		return c.ConfigPath, nil
	}
	return ClientConfigPath()
}

func (c *CLI) register(args []string) error {
	opts := Options{DataDir: c.DataDir}
	confirm := true
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--binary", "-b":
			if i+1 < len(args) {
				opts.BinaryPath = args[i+1]
				i++
			}
		case "--data-dir", "-d":
			if i+1 < len(args) {
				opts.DataDir = args[i+1]
				i++
			}
		case "--yes", "-y":
			confirm = false
		}
	}
	if opts.BinaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to resolve executable: %w", err)
		}
		opts.BinaryPath = exe
	}

	path, err := c.configPath()
	if err != nil {
		return err
	}
	opts.ConfigPath = path

	fmt.Fprintf(c.out, "Client config: %s\nServer binary: %s\nData directory: %s\n", path, opts.BinaryPath, opts.DataDir)
	if confirm {
		fmt.Fprint(c.out, "Proceed? [Y/n]: ")
		answer, _ := c.in.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "" && answer != "y" && answer != "yes" {
			fmt.Fprintln(c.out, "Cancelled.")
			return nil
		}
	}

	if _, err := Register(opts); err != nil {
		return fmt.Errorf("failed to register server: %w", err)
	}
	fmt.Fprintln(c.out, "Registered. Restart the MCP client to load the find_candidates tool.")
	return nil
}

func (c *CLI) seed() error {
	path, written, err := WriteSampleSeed(c.DataDir)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(c.out, "Wrote sample seed to %s\n", path)
	} else {
		fmt.Fprintf(c.out, "Seed already present at %s\n", path)
	}
	return nil
}

func (c *CLI) status() error {
	path, err := c.configPath()
	if err != nil {
		return err
	}
	st, err := GetStatus(path, c.DataDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Client config: %s\n", st.ConfigPath)
	fmt.Fprintf(c.out, "Registered:    %t\n", st.Registered)
	if st.Registered {
		fmt.Fprintf(c.out, "Server binary: %s\n", st.BinaryPath)
	}
	fmt.Fprintf(c.out, "Data dir:      %s\n", st.DataDir)
	fmt.Fprintf(c.out, "Seed present:  %t\n", st.SeedFound)
	for _, issue := range st.Issues {
		fmt.Fprintf(c.out, "  ! %s\n", issue)
	}
	return nil
}

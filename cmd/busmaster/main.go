// Command busmaster polls I/O nodes from a PC. Commands can be given on the
// command line for scripting or typed into an interactive prompt.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"busnode/config"
	"busnode/host/master"
	"busnode/host/serial"
	"busnode/protocol"
)

var (
	configPath = flag.String("config", "", "TOML config file path")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	verbose    = flag.Bool("verbose", false, "Log every exchange")
)

func main() {
	flag.Parse()

	cfg := config.DefaultMasterConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadMasterConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *device != "" {
		cfg.Device = *device
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	portCfg := serial.DefaultConfig(cfg.Device)
	portCfg.Baud = cfg.Baud
	port, err := serial.Open(portCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open %s: %v\n", cfg.Device, err)
		os.Exit(1)
	}

	client := master.NewClient(port, master.Config{Timeout: cfg.Timeout, Logger: &logger})
	defer client.Close()

	if flag.NArg() > 0 {
		if err := run(client, flag.Args()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Connected to %s. Type 'help' for commands, 'quit' to exit.\n", cfg.Device)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			return
		}
		if err := run(client, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func run(client *master.Client, args []string) error {
	cmd := args[0]
	if cmd == "help" || cmd == "?" {
		printHelp()
		return nil
	}
	if cmd == "scan" {
		return scan(client)
	}

	if len(args) < 2 {
		return fmt.Errorf("%s needs a node argument", cmd)
	}
	node, err := parseNode(args[1])
	if err != nil {
		return err
	}

	switch cmd {
	case "ping":
		if err := client.Ping(node); err != nil {
			return err
		}
		fmt.Printf("node 0x%02X alive\n", node)

	case "version":
		v, err := client.GetVersion(node)
		if err != nil {
			return err
		}
		fmt.Printf("node 0x%02X %s\n", node, v)

	case "heartbeat":
		health, err := client.Heartbeat(node)
		if err != nil {
			return err
		}
		fmt.Printf("node 0x%02X health %d%%\n", node, health)

	case "status":
		s, err := client.GetStatus(node)
		if err != nil {
			return err
		}
		fmt.Printf("node 0x%02X: health %d%%, uptime %ds, errors %d, rx %d, tx %d\n",
			s.NodeID, s.Health, s.Uptime, s.Errors, s.RxCount, s.TxCount)

	case "di":
		mask, err := client.ReadInputs(node)
		if err != nil {
			return err
		}
		printMask("inputs", mask)

	case "do":
		if len(args) < 3 {
			mask, err := client.ReadOutputs(node)
			if err != nil {
				return err
			}
			printMask("outputs", mask)
			return nil
		}
		mask, err := parseMask(args[2])
		if err != nil {
			return err
		}
		if err := client.WriteOutputs(node, mask); err != nil {
			return err
		}
		fmt.Println("outputs written")

	case "analog":
		records, err := client.ReadAnalog(node)
		if err != nil {
			return err
		}
		for i, r := range records {
			fmt.Printf("  ch %2d: raw %5d value %8.3f\n", i, r.Raw, r.Value)
		}

	default:
		return fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
	return nil
}

func scan(client *master.Client) error {
	found := 0
	for _, node := range []byte{
		protocol.AddrController420,
		protocol.AddrControllerDIO,
		protocol.AddrControllerOUT,
	} {
		if err := client.Ping(node); err != nil {
			fmt.Printf("node 0x%02X: no answer\n", node)
			continue
		}
		v, err := client.GetVersion(node)
		if err != nil {
			fmt.Printf("node 0x%02X: alive\n", node)
		} else {
			fmt.Printf("node 0x%02X: %s\n", node, v)
		}
		found++
	}
	fmt.Printf("%d node(s) responding\n", found)
	return nil
}

// parseNode accepts a role name ("dio") or a numeric address ("2", "0x02").
func parseNode(s string) (byte, error) {
	if addr, err := config.RoleAddress(s); err == nil {
		return addr, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("bad node %q", s)
	}
	return byte(n), nil
}

// parseMask accepts hex bytes like "ff00000000000a".
func parseMask(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	mask := make([]byte, len(s)/2)
	for i := range mask {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad mask %q", s)
		}
		mask[i] = byte(b)
	}
	return mask, nil
}

func printMask(label string, mask []byte) {
	fmt.Printf("%s:", label)
	for _, b := range mask {
		fmt.Printf(" %08b", b)
	}
	fmt.Println()
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  scan                - Ping every known node address")
	fmt.Println("  ping <node>         - Check a node is alive")
	fmt.Println("  version <node>      - Read firmware version")
	fmt.Println("  heartbeat <node>    - Exchange a heartbeat")
	fmt.Println("  status <node>       - Read the status register")
	fmt.Println("  di <node>           - Read digital inputs")
	fmt.Println("  do <node> [mask]    - Read or write digital outputs (hex mask)")
	fmt.Println("  analog <node>       - Read all analog channels")
	fmt.Println("  quit/exit/q         - Exit the program")
	fmt.Println("\nNodes: 420 (0x01), dio (0x02), out (0x03) or a numeric address")
	fmt.Println()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iti/sdntopo"
	"github.com/iti/sdntopo/serial"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultSock = "/tmp/sdntopo-serial.sock"

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "sdntopo",
		Short: "Builds SDN controller test topologies",
		Long: `Builds collision free test topologies of switches and hosts for many
concurrently running controller tests, and maps hardware switch ports.
`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	cmd.AddCommand(serveCmd(), buildCmd(), remapCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		sock       string
		minPortAge time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the serial number and port allocator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := serial.NewServer(sock, minPortAge)
			server.Logger = log.StandardLogger()
			if err := server.Listen(); err != nil {
				return err
			}
			return server.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&sock, "sock", defaultSock, "unix socket to listen on")
	cmd.Flags().DurationVar(&minPortAge, "min-port-age", serial.DefaultMinPortAge, "how long a released port rests")
	return cmd
}

func buildCmd() *cobra.Command {
	var (
		optionsFile string
		sock        string
		out         string
		topology    string
		randDpids   int
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:     "build",
		Short:   "Build a topology and write its description",
		Example: `sdntopo build --options chain.yaml --topology chain --out topo.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := sdntopo.DefaultBuildOptions()
			if optionsFile != "" {
				var err error
				opts, err = sdntopo.LoadBuildOptions(optionsFile)
				if err != nil {
					return err
				}
			}
			if len(opts.Dpids) == 0 && randDpids > 0 {
				for _, dpid := range sdntopo.RandDpids(opts.TestName, randDpids) {
					opts.Dpids = append(opts.Dpids, dpid.String())
				}
			}

			client := serial.NewClient(sock)
			client.Timeout = timeout

			var (
				topo *sdntopo.Topology
				err  error
			)
			switch topology {
			case "chain":
				topo, err = sdntopo.BuildChain(cmd.Context(), client, opts)
			case "switches":
				topo, err = sdntopo.BuildSwitches(cmd.Context(), client, opts)
			default:
				return errors.Errorf("unknown topology %q, want chain or switches", topology)
			}
			if err != nil {
				return err
			}
			return topo.WriteToFile(out)
		},
	}
	cmd.Flags().StringVar(&optionsFile, "options", "", "yaml or json build options")
	cmd.Flags().StringVar(&sock, "sock", defaultSock, "unix socket of the allocator")
	cmd.Flags().StringVar(&out, "out", "topo.yaml", "yaml or json file the topology is written to")
	cmd.Flags().StringVar(&topology, "topology", "chain", "chain or switches")
	cmd.Flags().IntVar(&randDpids, "rand-dpids", 0, "draw this many dpids from the test name when the options give none")
	cmd.Flags().DurationVar(&timeout, "timeout", serial.DefaultTimeout, "allocator request timeout")
	return cmd
}

func remapCmd() *cobra.Command {
	var (
		desc    string
		dpidStr string
		port    int
		reverse bool
	)
	cmd := &cobra.Command{
		Use:   "remap",
		Short: "Translate switch ports of a built topology",
		Long: `Prints the port number the controller sees for a port of the test fabric,
or with --reverse the fabric port behind a controller port. Without --port the
whole port map of the switch is printed.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := sdntopo.LoadTopology(desc)
			if err != nil {
				return err
			}
			dpid, err := sdntopo.ParseDpid(dpidStr)
			if err != nil {
				return err
			}

			if port == 0 {
				portMap, err := topo.PortMap(dpid)
				if err != nil {
					return err
				}
				bytes, err := yaml.Marshal(portMap)
				if err != nil {
					return errors.Wrap(err, "format port map")
				}
				fmt.Fprint(cmd.OutOrStdout(), string(bytes))
				return nil
			}

			remap := topo.RemapPort
			if reverse {
				remap = topo.SoftwarePort
			}
			mapped, err := remap(dpid, port)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mapped)
			return nil
		},
	}
	cmd.Flags().StringVar(&desc, "desc", "topo.yaml", "topology written by build")
	cmd.Flags().StringVar(&dpidStr, "dpid", "", "datapath id, decimal or 0x hex")
	cmd.Flags().IntVar(&port, "port", 0, "port to translate")
	cmd.Flags().BoolVar(&reverse, "reverse", false, "translate a controller port back to the fabric port")
	_ = cmd.MarkFlagRequired("dpid")
	return cmd
}

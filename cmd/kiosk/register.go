package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/punchclock/internal/vision"
)

var registerRegion string

var registerCmd = &cobra.Command{
	Use:   "register <name> <image>...",
	Short: "Register a person from one or more face images",
	Long: `Extracts a feature vector from every image with the configured extractor,
averages them and adds the person to the registry. Use --region to crop the
face out of larger frames.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerRegion, "region", "", "face box as x,y,w,h applied to every image")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	name, paths := args[0], args[1:]

	region, err := parseBox(registerRegion)
	if err != nil {
		return err
	}

	ex, closeExtractor, err := vision.Open(cfg.Vision)
	if err != nil {
		return fmt.Errorf("open extractor: %w", err)
	}
	defer closeExtractor()

	vectors := make([][]float32, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		img, err := vision.Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if region != nil {
			if img, err = vision.Crop(img, *region); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
		vec, err := ex.Extract(img)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		vectors = append(vectors, vec)
	}

	reg, _, closeBackend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	id, err := reg.Register(ctx, name, vectors, time.Now())
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as #%d from %d image(s) (%s, %d values)\n",
		id.Name, id.ID, len(vectors), ex.Name(), len(id.Vector))
	return nil
}

// parseBox reads "x,y,w,h".
func parseBox(s string) (*vision.Box, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("region must be x,y,w,h")
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("region: %w", err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return nil, fmt.Errorf("region must have a positive size")
	}
	return &vision.Box{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

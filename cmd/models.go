package cmd

import (
	"fmt"

	"adpulse/bootstrap"
	"adpulse/model"

	"github.com/spf13/cobra"
)

// newModelsCmd creates the 'models' subcommand group.
func newModelsCmd() *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the model registry",
		Long:  "List registered model families and versions. The registry is append-only; run configuration pins versions explicitly.",
	}

	modelsCmd.AddCommand(newModelsListCmd())
	modelsCmd.AddCommand(newModelsShowCmd())
	return modelsCmd
}

func openRegistry() (*model.Registry, error) {
	_, sugar, err := bootstrap.InitLogger("warn", false)
	if err != nil {
		return nil, err
	}
	cfg, err := bootstrap.InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	return model.NewRegistry(cfg.DataPaths.ModelsDir, sugar)
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List model families and their versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry()
			if err != nil {
				return err
			}

			families, err := registry.Families()
			if err != nil {
				return fmt.Errorf("failed to list model families: %w", err)
			}

			type familyVersions struct {
				Family   string   `json:"family"`
				Versions []string `json:"versions"`
			}
			var out []familyVersions
			for _, family := range families {
				versions, err := registry.ListVersions(family)
				if err != nil {
					return fmt.Errorf("failed to list versions for %s: %w", family, err)
				}
				out = append(out, familyVersions{Family: family, Versions: versions})
			}

			if outputJSON {
				return outputAsJSON(out)
			}

			if len(out) == 0 {
				warningColor.Println("No models registered")
				return nil
			}
			headerColor.Println("MODEL FAMILIES")
			for _, fv := range out {
				infoColor.Printf("%s\n", fv.Family)
				for i, v := range fv.Versions {
					marker := " "
					if i == 0 {
						marker = "*" // newest
					}
					fmt.Printf("  %s %s\n", marker, v)
				}
			}
			return nil
		},
	}
}

func newModelsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <family>[@<version>]",
		Short: "Show a model artifact and its training metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry()
			if err != nil {
				return err
			}

			ref, err := parseModelRef(registry, args[0])
			if err != nil {
				return err
			}

			artifact, err := registry.Load(ref)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}

			if outputJSON {
				out := map[string]interface{}{"artifact": artifact}
				if meta, err := registry.LoadMetadata(ref); err == nil {
					out["metadata"] = meta
				}
				return outputAsJSON(out)
			}

			renderModelDetails(registry, ref, artifact)
			return nil
		},
	}
}

// parseModelRef resolves "family" (newest version) or "family@version".
func parseModelRef(registry *model.Registry, arg string) (model.Ref, error) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '@' {
			return model.Ref{Family: arg[:i], Version: arg[i+1:]}, nil
		}
	}
	version, err := registry.LatestVersion(arg)
	if err != nil {
		return model.Ref{}, err
	}
	return model.Ref{Family: arg, Version: version}, nil
}

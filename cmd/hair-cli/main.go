package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/hair-diagnosis-helper/internal/auth"
	"github.com/fpang/hair-diagnosis-helper/internal/cli"
	"github.com/fpang/hair-diagnosis-helper/internal/client"
	"github.com/fpang/hair-diagnosis-helper/internal/config"
	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/lambdaboot"
	"github.com/fpang/hair-diagnosis-helper/internal/logging"
	"github.com/fpang/hair-diagnosis-helper/internal/workflow"
)

var (
	apiFlag     string
	subjectFlag string
	nameFlag    string
	adminFlag   string
	outFlag     string
	pickFlag    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "hair-cli",
	Short: "Guided hair diagnosis and styling from the terminal",
	Long: `hair-cli walks through a hair diagnosis session against a running
hair-api: capture photos and videos, read the diagnosis, pick a hairstyle and
color, then refine and save the generated image.

Examples:
  hair-cli session --subject U123 --name Hanako
  hair-cli session --subject U123 --pick --out ./looks
  hair-cli gallery --subject U123
  hair-cli check-keys`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init()
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if apiFlag == "" {
			apiFlag = cfg.APIBaseURL
		}
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Run an interactive diagnosis session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		outDir, err := cli.ResolveOutputDir(outFlag)
		if err != nil {
			return err
		}
		api := client.New(apiFlag)
		if _, err := api.Health(ctx); err != nil {
			return fmt.Errorf("API at %s is not reachable: %w", apiFlag, err)
		}

		profile := diagnosis.SubjectProfile{
			Identifier:  subjectFlag,
			DisplayName: nameFlag,
			ViaAdmin:    adminFlag != "",
			AdminName:   adminFlag,
		}
		ctl := workflow.New(profile, workflow.Deps{
			Uploader:    api,
			Diagnoser:   api,
			Synthesizer: api,
			OnProgress: func(done, total int) {
				fmt.Fprintf(os.Stdout, "\r%s", cli.FormatProgress(done, total))
				if done == total {
					fmt.Fprintln(os.Stdout)
				}
			},
		})

		var pick cli.FilePicker
		if pickFlag {
			pick = cli.DialogPicker
		}
		s := cli.NewSession(ctl, cli.NewPrompter(os.Stdin, os.Stdout), os.Stdout, pick, outDir)
		if err := s.Run(ctx); err != nil {
			log.Debug().Err(err).Str("phase", ctl.Phase().String()).Msg("Session ended")
			return err
		}
		fmt.Println("Thank you!")
		return nil
	},
}

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "List a subject's saved images",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := client.New(apiFlag).Gallery(cmd.Context(), subjectFlag)
		if err != nil {
			return err
		}
		cli.PrintGallery(os.Stdout, records)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the API is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.New(apiFlag).Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", resp.Service, resp.Status)
		return nil
	},
}

var checkKeysCmd = &cobra.Command{
	Use:   "check-keys",
	Short: "Verify the LLM and image generation API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.NeedsAWS() {
			clients, err := lambdaboot.InitAWS(ctx)
			if err != nil {
				return err
			}
			lambdaboot.LoadAPIKeys(ctx, clients.SSM, cfg)
		}

		failed := 0
		for _, k := range []struct{ credential, key, model string }{
			{config.LLMKeyEnv, cfg.LLMAPIKey, cfg.TextModel},
			{config.ImageGenKeyEnv, cfg.ImageGenAPIKey, cfg.ImageModel},
		} {
			if err := checkKey(ctx, k.credential, k.key, k.model); err != nil {
				fmt.Println(cli.DescribeValidationError(k.credential, err))
				failed++
				continue
			}
			fmt.Printf("%s: ok (%s)\n", k.credential, k.model)
		}
		if failed > 0 {
			return fmt.Errorf("%d key(s) failed validation", failed)
		}
		return nil
	},
}

func checkKey(ctx context.Context, credential, key, model string) error {
	if key == "" {
		return &auth.ValidationError{Type: auth.ErrTypeNoKey, Message: credential + " is not set"}
	}
	gen, err := auth.NewGenerator(ctx, key)
	if err != nil {
		return err
	}
	return auth.ValidateAPIKey(ctx, gen, credential, model)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "API base URL (default: HAIR_API_URL or http://localhost:8080)")

	sessionCmd.Flags().StringVar(&subjectFlag, "subject", "", "Subject identifier")
	sessionCmd.Flags().StringVar(&nameFlag, "name", "", "Subject display name")
	sessionCmd.Flags().StringVar(&adminFlag, "admin", "", "Staff name when running the session for a customer")
	sessionCmd.Flags().StringVarP(&outFlag, "out", "o", ".", "Directory for generated images")
	sessionCmd.Flags().BoolVar(&pickFlag, "pick", false, "Offer a file dialog for empty answers")
	_ = sessionCmd.MarkFlagRequired("subject")

	galleryCmd.Flags().StringVar(&subjectFlag, "subject", "", "Subject identifier")
	_ = galleryCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(sessionCmd, galleryCmd, healthCmd, checkKeysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/commentlink/affordance"
	"github.com/hazyhaar/commentlink/fingerprint"
	"github.com/hazyhaar/commentlink/inspect"
	"github.com/hazyhaar/commentlink/platform"
	"github.com/hazyhaar/commentlink/session"
	"github.com/hazyhaar/commentlink/sharelink"
)

func (a *app) shareCmd() *cobra.Command {
	var pageURL, commentJSON string
	var fp fingerprint.Fingerprint
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Build the share link for a comment",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, ok := platform.Identify(pageURL)
			if !ok {
				return fmt.Errorf("commentlink: %w: %s", session.ErrUnsupported, pageURL)
			}
			if commentJSON != "" {
				var err error
				if fp, err = fingerprint.Unmarshal([]byte(commentJSON)); err != nil {
					return err
				}
			}
			if fp.Hash == "" {
				fp.Hash = fingerprint.HashOf(fp.Text)
			}
			link, err := sharelink.Build(sharelink.Strip(pageURL), fp, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, link)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&pageURL, "url", "", "page URL the comment appears on")
	f.StringVar(&commentJSON, "comment-json", "", "fingerprint as JSON")
	f.StringVar(&fp.Text, "text", "", "comment text")
	f.StringVar(&fp.Username, "username", "", "comment author")
	f.StringVar(&fp.Timestamp, "timestamp", "", "displayed comment time")
	f.StringVar(&fp.NativeID, "comment-id", "", "native comment element id")
	cmd.MarkFlagRequired("url")
	return cmd
}

func (a *app) parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <link>",
		Short: "Decode the comment carried by a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			fp, ok, err := sharelink.Parse(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("commentlink: no %s parameter in %s", sharelink.Param, args[0])
			}
			return a.printJSON(struct {
				Page    string                  `json:"page"`
				Comment fingerprint.Fingerprint `json:"comment"`
			}{sharelink.Strip(args[0]), fp})
		},
	}
}

func (a *app) scanCmd() *cobra.Command {
	var pageURL string
	var preview bool
	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "List the comments of saved HTML with their share links",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			markup, err := readInput(args[0])
			if err != nil {
				return err
			}
			rep, err := inspect.New(a.logger).Scan(markup, pageURL, preview)
			if err != nil {
				return err
			}
			return a.printJSON(rep)
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "URL the page was served at")
	cmd.Flags().BoolVar(&preview, "preview", true, "include a markdown preview of each comment")
	cmd.MarkFlagRequired("url")
	return cmd
}

func (a *app) resolveCmd() *cobra.Command {
	var link string
	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Find the comment a share link points at within saved HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			markup, err := readInput(args[0])
			if err != nil {
				return err
			}
			res, err := inspect.New(a.logger).Resolve(markup, link)
			if err != nil {
				return err
			}
			if err := a.printJSON(res); err != nil {
				return err
			}
			if !res.Found {
				return errors.New("commentlink: comment not found")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&link, "link", "", "share link")
	cmd.MarkFlagRequired("link")
	return cmd
}

func (a *app) decorateCmd() *cobra.Command {
	var pageURL, output, style string
	cmd := &cobra.Command{
		Use:   "decorate <file>",
		Short: "Add share buttons to saved HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markup, err := readInput(args[0])
			if err != nil {
				return err
			}
			if style == "" {
				style = a.cfg.Options.ButtonStyle
			}
			out, n, err := inspect.New(a.logger).Decorate(cmd.Context(), markup, pageURL, style, a.cfg.Affordance.Label)
			if err != nil {
				return err
			}
			a.logger.Info("commentlink: decorated", "buttons", n)
			if output == "" || output == "-" {
				_, err = fmt.Fprint(a.out, out)
				return err
			}
			if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
				return fmt.Errorf("commentlink: write %s: %w", output, err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&pageURL, "url", "", "URL the page was served at")
	f.StringVarP(&output, "output", "o", "", "output file (stdout by default)")
	f.StringVar(&style, "style", "", "button style: "+affordance.StyleDefault+" or "+affordance.StyleCompact)
	cmd.MarkFlagRequired("url")
	return cmd
}

func (a *app) probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file|url>",
		Short: "Suggest comment selectors for a page whose markup changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var markup string
			var err error
			if strings.HasPrefix(args[0], "http://") || strings.HasPrefix(args[0], "https://") {
				markup, err = a.fetchRendered(cmd, args[0])
			} else {
				markup, err = readInput(args[0])
			}
			if err != nil {
				return err
			}
			an, err := inspect.Probe(markup)
			if err != nil {
				return err
			}
			return a.printJSON(an)
		},
	}
}

// fetchRendered loads url in the browser and returns the rendered DOM.
func (a *app) fetchRendered(cmd *cobra.Command, url string) (string, error) {
	ctx := cmd.Context()
	st, err := a.newStack(ctx, true)
	if err != nil {
		return "", err
	}
	defer st.close()

	page, err := st.browser.Open(ctx, url)
	if err != nil {
		return "", err
	}
	defer page.Close()
	return page.HTML(ctx)
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"plan-tagger/internal/annotation"
	"plan-tagger/internal/app"
	"plan-tagger/internal/engine"
	"plan-tagger/internal/ocr"
	"plan-tagger/internal/page"
	"plan-tagger/internal/project"
	"plan-tagger/internal/surface"
	"plan-tagger/internal/tagmatch"
	"plan-tagger/pkg/geometry"
)

func (c *cli) matchCommand() *cobra.Command {
	var patternArgs []string
	cmd := &cobra.Command{
		Use:   "match --pattern PREFIX[=TABLE]... TEXT",
		Short: "Match text against tag patterns",
		Long: "Match normalizes TEXT and reports the first pattern, in flag order, " +
			"whose prefix starts it, with the match confidence.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patterns, err := parsePatterns(patternArgs)
			if err != nil {
				return err
			}
			c.printMatch(tagmatch.Match(strings.Join(args, " "), patterns))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&patternArgs, "pattern", "p", nil, "pattern as PREFIX or PREFIX=TABLE (repeatable)")
	return cmd
}

func (c *cli) printMatch(m *tagmatch.Result) {
	if m == nil {
		fmt.Fprintln(c.out, "no match")
		return
	}
	fmt.Fprintf(c.out, "%s\t%s\t%s\t%.1f\n", m.Text, m.Pattern.Prefix, m.Pattern.ScheduleTable, m.Confidence)
}

func (c *cli) ocrCommand() *cobra.Command {
	var (
		imagePath   string
		rect        string
		patternArgs []string
	)
	cmd := &cobra.Command{
		Use:   "ocr --image FILE --rect L,T,W,H",
		Short: "Recognize the text in a region of a plan image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseRect(rect)
			if err != nil {
				return err
			}
			patterns, err := parsePatterns(patternArgs)
			if err != nil {
				return err
			}
			img, err := page.LoadImage(imagePath)
			if err != nil {
				return err
			}
			b := img.Bounds()
			region, err := ocr.ExtractDocumentRegion(img, geometry.NewSize(float64(b.Dx()), float64(b.Dy())), pos.Rect())
			if err != nil {
				return err
			}

			recognizer, release, err := c.newRecognizer(c.settings, c.logger)
			if err != nil {
				return err
			}
			defer release()

			rec, err := recognizer.Recognize(cmd.Context(), ocr.Preprocess(region))
			if err != nil {
				return err
			}
			if rec.Text == "" {
				fmt.Fprintln(c.out, "no text")
				return nil
			}
			fmt.Fprintf(c.out, "%s\t%.1f\n", rec.Text, rec.Confidence)
			if len(patterns) > 0 {
				c.printMatch(tagmatch.Match(rec.Text, patterns))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "plan image (PNG, JPEG or TIFF)")
	cmd.Flags().StringVarP(&rect, "rect", "r", "", "region in image pixels as left,top,width,height")
	cmd.Flags().StringArrayVarP(&patternArgs, "pattern", "p", nil, "also match the text against PREFIX[=TABLE] (repeatable)")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("rect")
	return cmd
}

func (c *cli) pagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pages FILE",
		Short: "List the pages of a plan with their sizes and document ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := page.Measure(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PAGE\tWIDTH\tHEIGHT\tROTATE\tDOCUMENT")
			for _, info := range infos {
				fmt.Fprintf(tw, "%d\t%.0f\t%.0f\t%d\t%s\n", info.Number, info.Size.Width, info.Size.Height,
					info.Rotate, app.DocumentID(args[0], info.Number))
			}
			return tw.Flush()
		},
	}
}

// docFlags selects a document by id or by file and page.
type docFlags struct {
	id   string
	file string
	page int
}

func (d *docFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.id, "doc", "", "document id")
	cmd.Flags().StringVar(&d.file, "file", "", "plan file, instead of --doc")
	cmd.Flags().IntVar(&d.page, "page", 1, "page of --file")
	cmd.MarkFlagsMutuallyExclusive("doc", "file")
	cmd.MarkFlagsOneRequired("doc", "file")
}

func (d *docFlags) documentID() string {
	if d.id != "" {
		return d.id
	}
	return app.DocumentID(d.file, d.page)
}

func (c *cli) patternsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List, add and delete a document's tag patterns",
	}
	cmd.AddCommand(c.patternsListCommand(), c.patternsAddCommand(), c.patternsDeleteCommand())
	return cmd
}

// withEngine runs fn against an engine for the document, so pattern edits
// get the same validation and link cleanup as in the window.
func (c *cli) withEngine(cmd *cobra.Command, docID string, fn func(e *engine.Engine) error) error {
	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	e, err := engine.New(cmd.Context(), engine.Options{
		DocumentID: docID,
		Store:      st,
		Surface:    surface.NewMemorySurface(),
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	runErr := fn(e)
	return errors.Join(runErr, e.Dispose())
}

func (c *cli) patternsListCommand() *cobra.Command {
	var doc docFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List patterns with their linked tag counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, doc.documentID(), func(e *engine.Engine) error {
				counts := e.LinkCounts()
				tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPREFIX\tTABLE\tLINKED\tDESCRIPTION")
				for _, p := range e.Patterns() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Prefix, p.ScheduleTable, counts[p.ID], p.Description)
				}
				return tw.Flush()
			})
		},
	}
	doc.register(cmd)
	return cmd
}

func (c *cli) patternsAddCommand() *cobra.Command {
	var (
		doc docFlags
		p   annotation.TagPattern
	)
	cmd := &cobra.Command{
		Use:   "add --prefix P --table TABLE",
		Short: "Add a pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, doc.documentID(), func(e *engine.Engine) error {
				saved, err := e.SavePattern(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, saved.ID)
				return nil
			})
		},
	}
	doc.register(cmd)
	cmd.Flags().StringVar(&p.Prefix, "prefix", "", "tag prefix, e.g. P")
	cmd.Flags().StringVar(&p.ScheduleTable, "table", "", "destination schedule table")
	cmd.Flags().StringVar(&p.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func (c *cli) patternsDeleteCommand() *cobra.Command {
	var doc docFlags
	cmd := &cobra.Command{
		Use:   "delete PATTERN-ID",
		Short: "Delete a pattern; its linked tags are kept and unlinked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, doc.documentID(), func(e *engine.Engine) error {
				linked := len(e.LinkedAnnotations(args[0]))
				if err := e.DeletePattern(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "deleted %s, unlinked %d tags\n", args[0], linked)
				return nil
			})
		},
	}
	doc.register(cmd)
	return cmd
}

func (c *cli) exportCommand() *cobra.Command {
	var (
		doc  docFlags
		path string
	)
	cmd := &cobra.Command{
		Use:   "export --out FILE",
		Short: "Write a document's patterns and tags to a tag file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := project.Export(cmd.Context(), st, doc.documentID())
			if err != nil {
				return err
			}
			if doc.file != "" {
				f.SetSource(path, doc.file, doc.page)
			}
			if err := f.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "exported %s to %s\n", f, path)
			return nil
		},
	}
	doc.register(cmd)
	cmd.Flags().StringVarP(&path, "out", "o", "", "tag file to write")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (c *cli) importCommand() *cobra.Command {
	var doc docFlags
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Add the patterns and tags of a tag file to a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := project.Load(args[0])
			if err != nil {
				return err
			}
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			patterns, anns, err := project.Import(cmd.Context(), st, doc.documentID(), f)
			fmt.Fprintf(c.out, "imported %d patterns, %d tags\n", patterns, anns)
			return err
		},
	}
	doc.register(cmd)
	return cmd
}

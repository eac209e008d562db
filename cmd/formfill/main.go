// Command formfill imports forms into a store, places images into their
// blank cells, annotates them and exports the result.
//
//	formfill import -id tax2024 -image scan.png
//	formfill place -id tax2024 -area 3 -image photo.jpg -fit letterbox
//	formfill text -id tax2024 -x 40 -y 120 -text "J. Smith"
//	formfill stroke -id tax2024 -points "10,10 80,10 80,40"
//	formfill export -id tax2024 -out filled.png
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"gridfill/internal/app"
	"gridfill/internal/canvas"
	"gridfill/internal/fit"
	fimage "gridfill/internal/image"
	"gridfill/internal/logging"
	"gridfill/internal/prefs"
	"gridfill/internal/project"
	"gridfill/internal/version"
	"gridfill/pkg/colorutil"
	"gridfill/pkg/geometry"
)

const usage = `Usage: formfill <command> [flags]

Commands:
  import   -id <id> -image <path> [-tolerant]
  detect   -id <id> [-tolerant]
  list
  place    -id <id> -area <n> -image <path> [-fit crop-fill|letterbox]
  text     -id <id> -x <x> -y <y> -text <s> [-size <px>] [-color #rrggbb]
  stroke   -id <id> -points "x,y x,y ..." [-erase] [-width <px>]
  export   -id <id> -out <path.png>
  delete   -id <id>

Global flags (before the command):
  -store <dir>   form directory (default from preferences)
  -db <path>     use a SQLite database instead of a directory
  -v             verbose output
  -version       print version and exit
`

func main() {
	p := prefs.Load()

	global := flag.NewFlagSet("formfill", flag.ExitOnError)
	storeDir := global.String("store", p.String(prefs.KeyStoreDir), "Form directory")
	dsn := global.String("db", p.String(prefs.KeyStoreDSN), "SQLite database path")
	verbose := global.Bool("v", false, "Verbose output")
	showVersion := global.Bool("version", false, "Print version and exit")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	global.Parse(os.Args[1:])

	if *showVersion {
		fmt.Println(version.String("formfill"))
		return
	}

	args := global.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	store, closeStore, err := openStore(*storeDir, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess := app.NewSession(store, p.CanvasOptions()...)
	if err := run(ctx, sess, store, p, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		stop()
		closeStore()
		os.Exit(1)
	}
}

func openStore(dir, dsn string) (project.Store, func(), error) {
	if dsn != "" {
		s, err := project.OpenSQLStore(dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
	if dir == "" {
		dir = filepath.Join(filepath.Dir(prefs.DefaultPath()), "forms")
	}
	s, err := project.NewFileStore(dir)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {}, nil
}

func run(ctx context.Context, sess *app.Session, store project.Store, p *prefs.Prefs, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	id := fs.String("id", "", "Form id")

	switch cmd {
	case "import":
		imagePath := fs.String("image", "", "Form image")
		tolerant := fs.Bool("tolerant", p.Bool(prefs.KeyTolerant, false), "Widen thresholds for noisy scans")
		fs.Parse(args)
		if *id == "" || *imagePath == "" {
			return errors.New("-id and -image are required")
		}
		if err := fimage.CheckFormat(*imagePath); err != nil {
			return err
		}
		f, err := os.Open(*imagePath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := sess.Import(ctx, *id, f, *tolerant); err != nil {
			return err
		}
		printAreas(sess.Areas())
		return nil

	case "detect":
		tolerant := fs.Bool("tolerant", p.Bool(prefs.KeyTolerant, false), "Widen thresholds for noisy scans")
		fs.Parse(args)
		if err := sess.Open(ctx, *id); err != nil {
			return err
		}
		areas, err := sess.DetectBlankAreas(ctx, *tolerant)
		if err != nil {
			return err
		}
		printAreas(areas)
		return nil

	case "list":
		fs.Parse(args)
		ids, err := store.List(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil

	case "place":
		area := fs.Int("area", -1, "Blank area index")
		imagePath := fs.String("image", "", "Image to place")
		mode := fs.String("fit", p.FitMode().String(), "Fit mode: crop-fill or letterbox")
		fs.Parse(args)
		m, err := fit.ParseMode(*mode)
		if err != nil {
			return err
		}
		if err := fimage.CheckFormat(*imagePath); err != nil {
			return err
		}
		if err := sess.Open(ctx, *id); err != nil {
			return err
		}
		f, err := os.Open(*imagePath)
		if err != nil {
			return err
		}
		defer f.Close()
		r, err := sess.PlaceImage(ctx, *area, f, m)
		if err != nil {
			return err
		}
		fmt.Printf("Placed %s into area %d at %d,%d %dx%d\n", *imagePath, *area, r.X, r.Y, r.Width, r.Height)
		return nil

	case "text":
		x := fs.Float64("x", 0, "Left edge")
		y := fs.Float64("y", 0, "Top edge")
		text := fs.String("text", "", "Text; \\n starts a new line")
		size := fs.Float64("size", p.Style().FontSize, "Font size in pixels")
		col := fs.String("color", colorutil.Hex(p.Style().Color), "Text color")
		fs.Parse(args)
		if err := sess.Open(ctx, *id); err != nil {
			return err
		}
		st, err := styleWith(p.Style(), *col)
		if err != nil {
			return err
		}
		st.FontSize = *size
		if err := sess.SetStyle(st); err != nil {
			return err
		}
		return sess.PlaceText(ctx, geometry.Point2D{X: *x, Y: *y}, strings.ReplaceAll(*text, `\n`, "\n"))

	case "stroke":
		points := fs.String("points", "", "Space separated x,y points")
		erase := fs.Bool("erase", false, "Erase instead of draw")
		width := fs.Float64("width", 0, "Pen width or eraser radius (0 = preference)")
		col := fs.String("color", colorutil.Hex(p.Style().Color), "Pen color")
		fs.Parse(args)
		pts, err := parsePoints(*points)
		if err != nil {
			return err
		}
		if err := sess.Open(ctx, *id); err != nil {
			return err
		}
		st, err := styleWith(p.Style(), *col)
		if err != nil {
			return err
		}
		tool := canvas.ToolDraw
		if *erase {
			tool = canvas.ToolErase
		}
		if *width > 0 {
			if *erase {
				st.EraserRadius = *width
			} else {
				st.Width = *width
			}
		}
		if err := sess.SetStyle(st); err != nil {
			return err
		}
		if err := sess.BeginStroke(tool, pts[0]); err != nil {
			return err
		}
		for _, pt := range pts[1:] {
			if err := sess.ExtendStroke(pt); err != nil {
				return err
			}
		}
		return sess.EndStroke(ctx)

	case "export":
		out := fs.String("out", "", "Output PNG path")
		fs.Parse(args)
		if *out == "" {
			return errors.New("-out is required")
		}
		if err := sess.Open(ctx, *id); err != nil {
			return err
		}
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		if err := sess.Export(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()

	case "delete":
		fs.Parse(args)
		return store.Delete(ctx, *id)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func styleWith(st canvas.Style, hex string) (canvas.Style, error) {
	c, err := colorutil.ParseHex(hex)
	if err != nil {
		return st, err
	}
	st.Color = c
	return st, nil
}

// parsePoints parses "x,y x,y ...".
func parsePoints(s string) ([]geometry.Point2D, error) {
	var pts []geometry.Point2D
	for _, f := range strings.Fields(s) {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("bad point %q", f)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("bad point %q: %w", f, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("bad point %q: %w", f, err)
		}
		pts = append(pts, geometry.Point2D{X: x, Y: y})
	}
	if len(pts) == 0 {
		return nil, errors.New("no points")
	}
	return pts, nil
}

func printAreas(areas []geometry.RectInt) {
	fmt.Printf("%d blank areas:\n", len(areas))
	fmt.Printf("%-4s %8s %8s %8s %8s\n", "#", "X", "Y", "Width", "Height")
	for i, a := range areas {
		fmt.Printf("%-4d %8d %8d %8d %8d\n", i, a.X, a.Y, a.Width, a.Height)
	}
}

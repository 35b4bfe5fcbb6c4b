package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cpmtools/altairdisk/disks"
	"github.com/cpmtools/altairdisk/file_systems/cpm"
	"github.com/urfave/cli/v2"
)

// defaultDiskType is used when formatting a new image without --type.
const defaultDiskType = "FDD_8IN"

var typeFlag = &cli.StringFlag{
	Name:    "type",
	Aliases: []string{"T"},
	Usage:   "disk image type; auto-detected from the image size if not given",
	EnvVars: []string{"ALTAIRDSK_TYPE"},
}

var verboseFlag = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "log the disk type and every sector read and written",
	EnvVars: []string{"ALTAIRDSK_VERBOSE"},
}

var userFlag = &cli.IntFlag{
	Name:    "user",
	Aliases: []string{"u"},
	Usage:   "restrict the operation to one CP/M user (0-15); default is all users, or 0 when writing",
	Value:   cpm.AllUsers,
	EnvVars: []string{"ALTAIRDSK_USER"},
}

var textFlag = &cli.BoolFlag{
	Name:    "text",
	Aliases: []string{"t"},
	Usage:   "copy files in text mode, stopping at the ^Z end-of-file marker",
}

var binaryFlag = &cli.BoolFlag{
	Name:    "binary",
	Aliases: []string{"b"},
	Usage:   "copy files in binary mode, keeping every record whole",
}

// newApp builds the command line. The --type and --user flags must come before
// the command name.
func newApp() *cli.App {
	return &cli.App{
		Name:      "altairdsk",
		Usage:     "Manage CP/M disk images for the MITS Altair",
		ArgsUsage: "IMAGE",
		Flags:     []cli.Flag{typeFlag, verboseFlag, userFlag},
		Before:    setUpLogging,
		Action:    listDirectory,
		Commands: []*cli.Command{
			{
				Name:      "dir",
				Usage:     "List the files on an image (the default)",
				ArgsUsage: "IMAGE",
				Action:    listDirectory,
			},
			{
				Name:      "raw",
				Usage:     "List every directory entry and the free allocation blocks",
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "csv", Usage: "print the directory entries as CSV"},
				},
				Action: listRawDirectory,
			},
			{
				Name:      "get",
				Usage:     "Copy a file from the image to the host",
				ArgsUsage: "IMAGE CPMFILE [HOSTFILE]",
				Flags:     []cli.Flag{textFlag, binaryFlag},
				Action:    getFile,
			},
			{
				Name:      "mget",
				Usage:     "Copy files from the image to the host; wildcards * and ? are supported",
				ArgsUsage: "IMAGE PATTERN...",
				Flags:     []cli.Flag{textFlag, binaryFlag},
				Action:    getFiles,
			},
			{
				Name:      "put",
				Usage:     "Copy a file from the host onto the image",
				ArgsUsage: "IMAGE HOSTFILE [CPMFILE]",
				Action:    putFile,
			},
			{
				Name:      "mput",
				Usage:     "Copy files from the host onto the image",
				ArgsUsage: "IMAGE HOSTFILE...",
				Action:    putFiles,
			},
			{
				Name:      "erase",
				Usage:     "Erase a file from the image",
				ArgsUsage: "IMAGE CPMFILE",
				Action:    eraseFile,
			},
			{
				Name:      "merase",
				Usage:     "Erase files from the image; wildcards * and ? are supported",
				ArgsUsage: "IMAGE PATTERN...",
				Action:    eraseFiles,
			},
			{
				Name:      "format",
				Usage:     "Create a new image or wipe an existing one. Defaults to " + defaultDiskType,
				ArgsUsage: "IMAGE",
				Action:    formatImage,
			},
			{
				Name:      "sysget",
				Usage:     "Save the CP/M system tracks of a bootable image to a host file",
				ArgsUsage: "IMAGE HOSTFILE",
				Action:    extractSystem,
			},
			{
				Name:      "sysput",
				Usage:     "Write a saved CP/M system to the image, making it bootable",
				ArgsUsage: "IMAGE HOSTFILE",
				Action:    installSystem,
			},
			{
				Name:   "types",
				Usage:  "List the supported disk image types",
				Action: listDiskTypes,
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func setUpLogging(context *cli.Context) error {
	level := slog.LevelInfo
	if context.Bool("verbose") {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Argument handling

func requireArgs(context *cli.Context, minimum, maximum int) error {
	name := context.App.Name
	usage := context.App.ArgsUsage
	if context.Command != nil && context.Command.Name != "" {
		name = context.Command.FullName()
		usage = context.Command.ArgsUsage
	}

	count := context.Args().Len()
	if count < minimum {
		return fmt.Errorf("%s: expected %s", name, usage)
	}
	if maximum >= 0 && count > maximum {
		return fmt.Errorf("%s: too many arguments supplied", name)
	}
	return nil
}

// userFilter gives the user number to search for, which may be
// [cpm.AllUsers].
func userFilter(context *cli.Context) (int, error) {
	user := context.Int("user")
	if user != cpm.AllUsers && (user < 0 || user > cpm.MaxUser) {
		return 0, fmt.Errorf("user number %d not in range [0, %d]", user, cpm.MaxUser)
	}
	return user, nil
}

// writeUser gives the user number new files are created for.
func writeUser(context *cli.Context) (uint8, error) {
	user, err := userFilter(context)
	if err != nil {
		return 0, err
	}
	if user == cpm.AllUsers {
		return 0, nil
	}
	return uint8(user), nil
}

func transferMode(context *cli.Context) (cpm.TransferMode, error) {
	text := context.Bool("text")
	binary := context.Bool("binary")
	switch {
	case text && binary:
		return cpm.ModeAuto, fmt.Errorf("--text and --binary can't be used together")
	case text:
		return cpm.ModeText, nil
	case binary:
		return cpm.ModeBinary, nil
	default:
		return cpm.ModeAuto, nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// Opening images

// openedImage is a mounted image and the host file it lives in.
type openedImage struct {
	file   *os.File
	driver *cpm.Driver
}

func openImage(context *cli.Context, writable bool) (*openedImage, error) {
	path := context.Args().First()
	if path == "" {
		return nil, fmt.Errorf("disk image not supplied")
	}

	mode := os.O_RDONLY
	if writable {
		mode = os.O_RDWR
	}
	file, err := os.OpenFile(path, mode, 0)
	if err != nil {
		return nil, err
	}

	driver, err := cpm.OpenImage(file, context.String("type"), slog.Default())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug(
		"opened image",
		slog.String("path", path),
		slog.String("disk_type", driver.Geometry().Slug),
	)
	return &openedImage{file: file, driver: driver}, nil
}

// close writes out all changes and closes the image file. If `err` isn't nil
// it's returned, and so are any errors from closing.
func (image *openedImage) close(err error) error {
	unmountErr := image.driver.Unmount()
	closeErr := image.file.Close()

	switch {
	case err != nil:
		return err
	case unmountErr != nil:
		return unmountErr
	default:
		return closeErr
	}
}

func createHostFile(hostName string) (io.WriteCloser, error) {
	return os.Create(hostName)
}

func openHostFile(hostPath string) (io.ReadCloser, error) {
	return os.Open(hostPath)
}

////////////////////////////////////////////////////////////////////////////////
// Commands

func listDirectory(context *cli.Context) error {
	if err := requireArgs(context, 1, 1); err != nil {
		return err
	}
	user, err := userFilter(context)
	if err != nil {
		return err
	}

	image, err := openImage(context, false)
	if err != nil {
		return err
	}

	infos, summary, err := image.driver.ListFiles(user)
	if err == nil {
		printDirectory(context.App.Writer, infos, summary)
	}
	return image.close(err)
}

func listRawDirectory(context *cli.Context) error {
	if err := requireArgs(context, 1, 1); err != nil {
		return err
	}
	image, err := openImage(context, false)
	if err != nil {
		return err
	}

	entries, err := image.driver.RawEntries()
	if err != nil {
		return image.close(err)
	}
	if context.Bool("csv") {
		return image.close(printRawDirectoryCSV(context.App.Writer, entries))
	}

	free, err := image.driver.FreeAllocations()
	if err == nil {
		printRawDirectory(context.App.Writer, entries, free)
	}
	return image.close(err)
}

func getFile(context *cli.Context) error {
	if err := requireArgs(context, 2, 3); err != nil {
		return err
	}
	user, err := userFilter(context)
	if err != nil {
		return err
	}
	mode, err := transferMode(context)
	if err != nil {
		return err
	}

	cpmName := context.Args().Get(1)
	hostName := context.Args().Get(2)
	if hostName == "" {
		hostName = cpmName
	}

	image, err := openImage(context, false)
	if err != nil {
		return err
	}

	file, err := image.driver.FindFile(filepath.Base(cpmName), user)
	if err != nil {
		return image.close(err)
	}

	output, err := os.Create(hostName)
	if err != nil {
		return image.close(err)
	}
	err = image.driver.ReadFile(file, output, mode)
	closeErr := output.Close()
	if err == nil {
		err = closeErr
	}
	return image.close(err)
}

func getFiles(context *cli.Context) error {
	if err := requireArgs(context, 2, -1); err != nil {
		return err
	}
	user, err := userFilter(context)
	if err != nil {
		return err
	}
	mode, err := transferMode(context)
	if err != nil {
		return err
	}

	image, err := openImage(context, false)
	if err != nil {
		return err
	}

	patterns := context.Args().Tail()
	err = image.driver.GetFiles(patterns, user, mode, createHostFile)
	return image.close(err)
}

func putFile(context *cli.Context) error {
	if err := requireArgs(context, 2, 3); err != nil {
		return err
	}
	user, err := writeUser(context)
	if err != nil {
		return err
	}

	hostPath := context.Args().Get(1)
	cpmName := context.Args().Get(2)
	if cpmName == "" {
		cpmName = filepath.Base(hostPath)
	}

	input, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer input.Close()

	image, err := openImage(context, true)
	if err != nil {
		return err
	}

	_, err = image.driver.WriteFile(cpmName, user, input)
	return image.close(err)
}

func putFiles(context *cli.Context) error {
	if err := requireArgs(context, 2, -1); err != nil {
		return err
	}
	user, err := writeUser(context)
	if err != nil {
		return err
	}

	image, err := openImage(context, true)
	if err != nil {
		return err
	}

	err = image.driver.PutFiles(context.Args().Tail(), user, openHostFile)
	return image.close(err)
}

func eraseFile(context *cli.Context) error {
	if err := requireArgs(context, 2, 2); err != nil {
		return err
	}
	user, err := userFilter(context)
	if err != nil {
		return err
	}

	image, err := openImage(context, true)
	if err != nil {
		return err
	}

	err = image.driver.Remove(context.Args().Get(1), user)
	return image.close(err)
}

func eraseFiles(context *cli.Context) error {
	if err := requireArgs(context, 2, -1); err != nil {
		return err
	}
	user, err := userFilter(context)
	if err != nil {
		return err
	}

	image, err := openImage(context, true)
	if err != nil {
		return err
	}

	err = image.driver.EraseFiles(context.Args().Tail(), user)
	return image.close(err)
}

// formatGeometry picks the disk type for formatting: the one given on the
// command line, the one matching the size of an existing image, or the
// default.
func formatGeometry(context *cli.Context, file *os.File) (disks.DiskGeometry, error) {
	if slug := context.String("type"); slug != "" {
		return disks.GetPredefinedDiskGeometry(slug)
	}

	stat, err := file.Stat()
	if err != nil {
		return disks.DiskGeometry{}, err
	}
	if geometry, ok := disks.DetectGeometry(stat.Size()); ok {
		slog.Info("formatting with detected disk type", slog.String("disk_type", geometry.Slug))
		return geometry, nil
	}

	slog.Info("defaulting to disk type", slog.String("disk_type", defaultDiskType))
	return disks.GetPredefinedDiskGeometry(defaultDiskType)
}

func formatImage(context *cli.Context) error {
	if err := requireArgs(context, 1, 1); err != nil {
		return err
	}

	file, err := os.OpenFile(context.Args().First(), os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return err
	}

	geometry, err := formatGeometry(context, file)
	if err == nil {
		err = cpm.NewDriver(file, geometry, slog.Default()).Format()
	}
	closeErr := file.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func extractSystem(context *cli.Context) error {
	if err := requireArgs(context, 2, 2); err != nil {
		return err
	}
	image, err := openImage(context, false)
	if err != nil {
		return err
	}

	output, err := os.Create(context.Args().Get(1))
	if err != nil {
		return image.close(err)
	}
	err = image.driver.ExtractSystem(output)
	closeErr := output.Close()
	if err == nil {
		err = closeErr
	}
	return image.close(err)
}

func installSystem(context *cli.Context) error {
	if err := requireArgs(context, 2, 2); err != nil {
		return err
	}
	data, err := os.ReadFile(context.Args().Get(1))
	if err != nil {
		return err
	}

	image, err := openImage(context, true)
	if err != nil {
		return err
	}
	return image.close(image.driver.InstallSystem(data))
}

func listDiskTypes(context *cli.Context) error {
	printDiskTypes(context.App.Writer)
	return nil
}

package builder

import "path/filepath"

// BinDirBase is the BINDIRBASE passed to make for appDir
func BinDirBase(appDir string) string {
	abs, err := filepath.Abs(appDir)
	if err != nil {
		abs = appDir
	}

	return filepath.Join(abs, "bin")
}

// BinDir is the directory make writes board specific output to
func BinDir(appDir, board string) string {
	return filepath.Join(BinDirBase(appDir), board)
}

// ElfFile is the path of the linked image of app inside binDir
func ElfFile(binDir, app string) string {
	return filepath.Join(binDir, app+".elf")
}

// HexFile is the path of the flashable image of app inside binDir
func HexFile(binDir, app string) string {
	return filepath.Join(binDir, app+".hex")
}

package simplefs

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sfskit/sfs"
	c "github.com/sfskit/sfs/file_systems/common"
)

// InodeReport describes one valid inode and the blocks it uses.
type InodeReport struct {
	Inumber  sfs.Inumber `csv:"inumber"`
	Size     uint32      `csv:"size"`
	Blocks   BlockList   `csv:"blocks"`
	Indirect uint32      `csv:"indirect"`
}

// BlockList is a list of physical blocks that serializes to CSV as a single
// space-separated field.
type BlockList []c.PhysicalBlock

// MarshalCSV implements gocsv.TypeMarshaller.
func (blocks BlockList) MarshalCSV() (string, error) {
	return blocks.String(), nil
}

func (blocks BlockList) String() string {
	parts := make([]string, len(blocks))
	for i, block := range blocks {
		parts[i] = strconv.FormatUint(uint64(block), 10)
	}
	return strings.Join(parts, " ")
}

// InodeReports returns a report for every valid inode, in increasing inode
// number order.
func (driver *Driver) InodeReports() ([]InodeReport, error) {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return nil, err
	}
	return driver.inodeReports()
}

func (driver *Driver) inodeReports() ([]InodeReport, error) {
	reports := []InodeReport{}

	for tableBlock := c.PhysicalBlock(1); tableBlock <= c.PhysicalBlock(driver.super.InodeTableBlocks); tableBlock++ {
		buffer, err := driver.readBlock(tableBlock)
		if err != nil {
			return nil, err
		}

		inodes, err := DecodeInodeBlock(buffer)
		if err != nil {
			return nil, err
		}

		for slot := range inodes {
			inode := &inodes[slot]
			if !inode.IsValid() {
				continue
			}

			inumber := sfs.Inumber(uint(tableBlock-1)*NumInodesPerBlock + uint(slot))
			blocks, err := driver.referencedBlocks(&driver.super, inumber, inode)
			if err != nil {
				return nil, err
			}

			reports = append(reports, InodeReport{
				Inumber:  inumber,
				Size:     inode.Size,
				Blocks:   BlockList(blocks.Data),
				Indirect: uint32(blocks.Indirect),
			})
		}
	}
	return reports, nil
}

// DebugDump writes the superblock and a summary of every valid inode to `w`.
// The format is meant for humans and may change at any time.
func (driver *Driver) DebugDump(w io.Writer) error {
	driver.lock.Lock()
	defer driver.lock.Unlock()

	err := driver.requireMounted()
	if err != nil {
		return err
	}

	reports, err := driver.inodeReports()
	if err != nil {
		return err
	}

	output := bytes.Buffer{}
	fmt.Fprintf(&output, "superblock:\n")
	fmt.Fprintf(&output, "    magic number is valid\n")
	fmt.Fprintf(&output, "    %d blocks\n", driver.super.TotalBlocks)
	fmt.Fprintf(&output, "    %d inode blocks\n", driver.super.InodeTableBlocks)
	fmt.Fprintf(&output, "    %d inodes\n", driver.super.InodeCapacity)
	fmt.Fprintf(
		&output,
		"    %d blocks in use, %d free\n",
		driver.freeMap.CountUsed(),
		driver.freeMap.CountFree(),
	)

	for _, report := range reports {
		fmt.Fprintf(&output, "inode %d:\n", report.Inumber)
		fmt.Fprintf(&output, "    size: %d bytes\n", report.Size)
		fmt.Fprintf(&output, "    blocks: %s\n", report.Blocks)
		if report.Indirect != 0 {
			fmt.Fprintf(&output, "    indirect block: %d\n", report.Indirect)
		}
	}

	_, err = output.WriteTo(w)
	if err != nil {
		return sfs.CastToDriverError(err).WithMessage("writing debug dump")
	}
	return nil
}

// WriteInodeReportCSV writes the same information as [Driver.InodeReports] to
// `w` as CSV, with a header row.
func (driver *Driver) WriteInodeReportCSV(w io.Writer) error {
	reports, err := driver.InodeReports()
	if err != nil {
		return err
	}
	return gocsv.Marshal(reports, w)
}

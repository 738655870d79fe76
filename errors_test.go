package sfs_test

import (
	"errors"
	"testing"

	"github.com/sfskit/sfs"
	"github.com/stretchr/testify/assert"
)

func TestDriverErrorWithMessage(t *testing.T) {
	newErr := sfs.ErrInvalidInode.WithMessage("inode 12 is not in use")
	assert.Equal(
		t, "Invalid inode: inode 12 is not in use", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, sfs.ErrInvalidInode)
	assert.NotErrorIs(t, newErr, sfs.ErrCorruptInode)
}

func TestDriverErrorWrap(t *testing.T) {
	originalErr := errors.New("short write")
	newErr := sfs.ErrIOFailed.Wrap(originalErr)
	expectedMessage := "Input/output error: short write"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, sfs.ErrIOFailed, "driver error not set as parent")
}

func TestCastToDriverError(t *testing.T) {
	assert.Nil(t, sfs.CastToDriverError(nil))

	kindErr := sfs.ErrDiskFull.WithMessage("no blocks left")
	assert.Equal(t, kindErr, sfs.CastToDriverError(kindErr), "driver errors must pass through")

	foreignErr := errors.New("device unplugged")
	cast := sfs.CastToDriverError(foreignErr)
	assert.ErrorIs(t, cast, sfs.ErrIOFailed)
	assert.ErrorIs(t, cast, foreignErr)
}

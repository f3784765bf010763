package contracts

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, DataFormatVersion, info.DataFormat)

	s := GetFullVersionString()
	assert.True(t, strings.HasPrefix(s, Version+" (format v1"), s)
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitByMultipleDelimiters(t *testing.T) {
	input := "a,b;c"
	delimiters := []string{",", ";"}
	expected := []string{"a", "b", "c"}
	result := SplitByMultipleDelimiters(input, delimiters...)
	assert.Equal(t, expected, result)
	input = "a"
	expected = []string{"a"}
	result = SplitByMultipleDelimiters(input, delimiters...)
	assert.Equal(t, expected, result)
	input = "a,b"
	expected = []string{"a,b"}
	result = SplitByMultipleDelimiters(input)
	assert.Equal(t, expected, result)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, SplitAndTrim(" kafka-1:9092 , kafka-2:9092,", ","))
	assert.Nil(t, SplitAndTrim("  ", ","))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "b", "c"))
	assert.Equal(t, "", FirstNonEmpty("", ""))
	assert.Equal(t, "", FirstNonEmpty())
}

func TestIsUUID(t *testing.T) {
	cases := map[string]bool{
		"6f1c2a9e-3b4d-4e5f-8a7b-1c2d3e4f5a6b": true,
		"6F1C2A9E-3B4D-4E5F-8A7B-1C2D3E4F5A6B": true,
		"6f1c2a9e-3b4d-6e5f-8a7b-1c2d3e4f5a6b": false, // version 6
		"6f1c2a9e-3b4d-4e5f-ca7b-1c2d3e4f5a6b": false, // variant
		"6f1c2a9e3b4d4e5f8a7b1c2d3e4f5a6b":     false,
		"":                                     false,
		"not-a-uuid":                           false,
	}
	for in, exp := range cases {
		assert.Equal(t, exp, IsUUID(in), in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ab", Truncate("ab", 3))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
	assert.Equal(t, "", Truncate("abc", 0))
}

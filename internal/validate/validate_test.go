package validate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPOrCIDR(t *testing.T) {
	v := New(nil, Options{})

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"203.0.113.7", "203.0.113.7", true},
		{" 10.0.0.1 ", "10.0.0.1", true},
		{"0.0.0.0", "0.0.0.0", true},
		{"255.255.255.255", "255.255.255.255", true},
		{"192.168.1.0/24", "192.168.1.0/24", true},
		{"192.168.1.77/24", "192.168.1.0/24", true},
		{"0.0.0.0/0", "0.0.0.0/0", true},
		{"10.1.2.3/32", "10.1.2.3/32", true},
		{"999.999.999.999", "", false},
		{"256.1.1.1", "", false},
		{"DROP TABLE", "", false},
		{"1.2.3", "", false},
		{"1.2.3.4.5", "", false},
		{"01.2.3.4", "", false},
		{"1.2.3.4/33", "", false},
		{"1.2.3.4/08", "", false},
		{"1.2.3.4/+8", "", false},
		{"1.2.3.4/", "", false},
		{"1.2.3.4; rm -rf /", "", false},
		{"1.2.3.4 5.6.7.8", "", false},
		{"2001:db8::1", "", false},
		{"::ffff:1.2.3.4", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := v.IPOrCIDR(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIPOrCIDR_IPv6WhenEnabled(t *testing.T) {
	v := New(nil, Options{AllowIPv6: true})

	got, ok := v.IPOrCIDR("2001:DB8:0:0::1")
	require.True(t, ok)
	assert.Equal(t, "2001:db8::1", got)

	got, ok = v.IPOrCIDR("2001:db8::5/64")
	require.True(t, ok)
	assert.Equal(t, "2001:db8::/64", got)

	_, ok = v.IPOrCIDR("fe80::1%eth0")
	assert.False(t, ok)
}

func TestIPOrCIDR_RoundTripProperty(t *testing.T) {
	v := New(nil, Options{})
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	octet := gen.IntRange(0, 255)

	properties.Property("canonical addresses are returned unchanged", prop.ForAll(
		func(a, b, c, d int) bool {
			s := fmt.Sprintf("%d.%d.%d.%d", a, b, c, d)
			got, ok := v.IPOrCIDR(s)
			return ok && got == s
		},
		octet, octet, octet, octet,
	))

	properties.Property("network blocks are returned unchanged", prop.ForAll(
		func(a, b, c, d, bits int) bool {
			raw := uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
			var mask uint32
			if bits > 0 {
				mask = ^uint32(0) << (32 - bits)
			}
			n := raw & mask
			s := fmt.Sprintf("%d.%d.%d.%d/%d", n>>24, (n>>16)&0xff, (n>>8)&0xff, n&0xff, bits)
			got, ok := v.IPOrCIDR(s)
			return ok && got == s
		},
		octet, octet, octet, octet, gen.IntRange(0, 32),
	))

	properties.Property("an out-of-range octet is rejected", prop.ForAll(
		func(a, bad, pos int) bool {
			parts := []string{fmt.Sprint(a), fmt.Sprint(a), fmt.Sprint(a), fmt.Sprint(a)}
			parts[pos] = fmt.Sprint(bad)
			_, ok := v.IPOrCIDR(strings.Join(parts, "."))
			return !ok
		},
		octet, gen.IntRange(256, 100000), gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

func TestMode(t *testing.T) {
	v := New(nil, Options{})

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"block", "block", true},
		{" BLOCK ", "block", true},
		{"Blocking", "block", true},
		{"detect", "detect", true},
		{"default", "detect", true},
		{"off", "off", true},
		{"disable", "off", true},
		{"block mode please", "", false},
		{"allow", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := v.Mode(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComment(t *testing.T) {
	v := New(nil, Options{CommentMaxLen: 16})

	assert.Equal(t, "scanner from asn", v.Comment("  scanner\tfrom\nasn  "))
	assert.Equal(t, "abc", v.Comment("a\x00b\x1bc"))
	assert.Equal(t, "hidden", v.Comment("hid\u200bden\u202e"))
	assert.Equal(t, "", v.Comment("\x01\x02 \u200b"))
	assert.Equal(t, "0123456789abcdef", v.Comment("0123456789abcdefXYZ"))
	assert.Equal(t, "0123456789abcde", v.Comment("0123456789abcde fgh"))

	cjk := strings.Repeat("封", 20)
	assert.Equal(t, strings.Repeat("封", 16), v.Comment(cjk))
}

func TestComment_DefaultLength(t *testing.T) {
	v := New(nil, Options{})
	got := v.Comment(strings.Repeat("x", 500))
	assert.Len(t, got, DefaultCommentMaxLen)
}

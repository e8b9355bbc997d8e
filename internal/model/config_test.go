package model_test

import (
	"strings"
	"testing"

	"github.com/CZERTAINLY/Weaver/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		want    model.Config
		wantErr bool
	}{
		{
			name: "full",
			yaml: "verbose: true\npasswords: [changeit, \"\"]\noutput: json\n",
			want: model.Config{Verbose: true, Passwords: []string{"changeit", ""}, Output: "json"},
		},
		{
			name: "defaults output",
			yaml: "verbose: false\n",
			want: model.Config{Output: model.OutputText},
		},
		{
			name:    "bad output",
			yaml:    "output: xml\n",
			wantErr: true,
		},
		{
			name:    "unknown field",
			yaml:    "passwordz: [nope]\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := model.LoadConfig(strings.NewReader(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()

	in := model.Config{Verbose: true, Passwords: []string{"secret"}, Output: model.OutputJSON}
	var sb strings.Builder
	require.NoError(t, model.StoreConfig(&sb, in))

	out, err := model.LoadConfig(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDistinguishedNameEqual(t *testing.T) {
	t.Parallel()

	cn := model.DNAttribute{OID: "2.5.4.3", ShortName: "CN", Value: "example.com"}
	org := model.DNAttribute{OID: "2.5.4.10", ShortName: "O", Value: "Example"}

	a := model.DistinguishedName{Attributes: []model.DNAttribute{cn, org}}
	b := model.DistinguishedName{Attributes: []model.DNAttribute{cn, org}}
	require.True(t, a.Equal(b))

	// order matters
	c := model.DistinguishedName{Attributes: []model.DNAttribute{org, cn}}
	require.False(t, a.Equal(c))

	// value matters
	d := model.DistinguishedName{Attributes: []model.DNAttribute{cn, {OID: "2.5.4.10", ShortName: "O", Value: "Other"}}}
	require.False(t, a.Equal(d))

	require.Equal(t, "example.com", a.CommonName())
	require.Equal(t, model.UnknownCommonName, model.DistinguishedName{}.CommonName())
	require.Equal(t, "CN=example.com, O=Example", a.String())
}

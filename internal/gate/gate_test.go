package gate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

func TestFailureGuardPolarity(t *testing.T) {
	guard := FailureGuard()

	for _, s := range model.FailureStatuses {
		require.Equal(t, IfBranch, Evaluate(guard, string(s)), s)
	}
	require.Equal(t, ElseBranch, Evaluate(guard, string(model.StatusCompleted)))
}

func TestEqualsIsExact(t *testing.T) {
	p := Equals("")
	require.Equal(t, IfBranch, Evaluate(p, ""))
	require.Equal(t, ElseBranch, Evaluate(p, "neo-job-1"))
	require.Equal(t, ElseBranch, Evaluate(Equals("Completed"), "COMPLETED"))
}

func TestNilPredicateTakesElse(t *testing.T) {
	require.Equal(t, ElseBranch, Evaluate(nil, "anything"))
}

func TestNewRebuildsPredicates(t *testing.T) {
	p, err := New(KindMemberOf, []string{"Failed", "Stopped"})
	require.NoError(t, err)
	require.True(t, p.Holds("Stopped"))
	require.Equal(t, []string{"Failed", "Stopped"}, p.Values())

	_, err = New(KindEquals, []string{"a", "b"})
	require.Error(t, err)

	_, err = New("Greater", nil)
	require.Error(t, err)
}

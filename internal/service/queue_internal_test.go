package service

import (
	"fmt"
	"testing"

	"github.com/riftbridge/custom-match-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func laneEntry(name string, primary, secondary domain.Lane, mmr int) domain.QueueEntry {
	return domain.QueueEntry{
		SummonerName:  name,
		PrimaryLane:   primary,
		SecondaryLane: secondary,
		MMR:           mmr,
	}
}

func TestAssignLanesHonorsPrimaries(t *testing.T) {
	var cohort []domain.QueueEntry
	for i, lane := range domain.Lanes {
		cohort = append(cohort,
			laneEntry(fmt.Sprintf("p%d_a", i), lane, "", 1000),
			laneEntry(fmt.Sprintf("p%d_b", i), lane, "", 1000),
		)
	}

	byLane, ok := assignLanes(cohort)
	require.True(t, ok)
	for _, lane := range domain.Lanes {
		require.Len(t, byLane[lane], 2, "lane %s", lane)
		for _, e := range byLane[lane] {
			assert.Equal(t, lane, e.PrimaryLane)
		}
	}
}

func TestAssignLanesFallsBackToSecondaryAndFill(t *testing.T) {
	// Eight players pair off on four lanes; the last two want mid but can
	// flex.
	var cohort []domain.QueueEntry
	for i, lane := range []domain.Lane{domain.LaneTop, domain.LaneJungle, domain.LaneMid, domain.LaneBot} {
		cohort = append(cohort,
			laneEntry(fmt.Sprintf("p%d_a", i), lane, "", 1000),
			laneEntry(fmt.Sprintf("p%d_b", i), lane, "", 1000),
		)
	}
	cohort = append(cohort,
		laneEntry("flex1", domain.LaneMid, domain.LaneSupport, 1000),
		laneEntry("flex2", domain.LaneMid, domain.LaneTop, 1000),
	)

	byLane, ok := assignLanes(cohort)
	require.True(t, ok)
	for _, lane := range domain.Lanes {
		assert.Len(t, byLane[lane], 2, "lane %s", lane)
	}
	// flex1 lands support via the secondary pass; flex2 is filled into the
	// remaining slot.
	supportNames := []string{byLane[domain.LaneSupport][0].SummonerName, byLane[domain.LaneSupport][1].SummonerName}
	assert.Contains(t, supportNames, "flex1")
	assert.Contains(t, supportNames, "flex2")
}

func TestAssignLanesFillPlayerCoversGap(t *testing.T) {
	// Nine players cover every lane but one support slot; a fill-primary
	// player prefers any lane and takes the gap in the preference pass,
	// ahead of players whose declared lanes are all taken.
	var cohort []domain.QueueEntry
	for i, lane := range domain.Lanes {
		cohort = append(cohort, laneEntry(fmt.Sprintf("p%d_a", i), lane, "", 1000))
		if lane != domain.LaneSupport {
			cohort = append(cohort, laneEntry(fmt.Sprintf("p%d_b", i), lane, "", 1000))
		}
	}
	cohort = append(cohort, laneEntry("flex", domain.LaneFill, "", 1000))

	byLane, ok := assignLanes(cohort)
	require.True(t, ok)
	supportNames := []string{byLane[domain.LaneSupport][0].SummonerName, byLane[domain.LaneSupport][1].SummonerName}
	assert.Contains(t, supportNames, "flex")
}

func TestPartitionTeamsBalancesMMR(t *testing.T) {
	byLane := map[domain.Lane][]domain.QueueEntry{}
	// One strong and one weak player per lane. The balanced split puts the
	// strong half evenly across both teams.
	for i, lane := range domain.Lanes {
		byLane[lane] = []domain.QueueEntry{
			laneEntry(fmt.Sprintf("strong%d", i), lane, "", 1600),
			laneEntry(fmt.Sprintf("weak%d", i), lane, "", 1000),
		}
	}

	team1, team2 := partitionTeams(byLane)
	require.Len(t, team1, 5)
	require.Len(t, team2, 5)

	diff := domain.AverageMMR(team1) - domain.AverageMMR(team2)
	if diff < 0 {
		diff = -diff
	}
	// With 5 strong/5 weak the optimum is a 3/2 vs 2/3 split: 120 MMR apart.
	assert.LessOrEqual(t, diff, 120)

	// Lane cover is preserved on both sides, in canonical order.
	for i, lane := range domain.Lanes {
		assert.Equal(t, lane, team1[i].AssignedLane)
		assert.Equal(t, lane, team2[i].AssignedLane)
	}
}

func TestPartitionTeamsEqualMMRIsFlat(t *testing.T) {
	byLane := map[domain.Lane][]domain.QueueEntry{}
	for i, lane := range domain.Lanes {
		byLane[lane] = []domain.QueueEntry{
			laneEntry(fmt.Sprintf("a%d", i), lane, "", 1200),
			laneEntry(fmt.Sprintf("b%d", i), lane, "", 1200),
		}
	}
	team1, team2 := partitionTeams(byLane)
	assert.Equal(t, domain.AverageMMR(team1), domain.AverageMMR(team2))
}

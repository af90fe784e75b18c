package room

// winLines are the 8 three-in-a-row lines of a 3x3 board: rows, columns,
// diagonals.
var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// CheckWinner inspects a full board and returns "X" or "O" when a line is
// solved by a single symbol, WinnerTie when all 9 cells are solved with no
// such line, and "" while the game is still open. A winning line always takes
// precedence over a tie.
func CheckWinner(board []Cell) string {
	if len(board) != BoardSize {
		return ""
	}
	for _, line := range winLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a.Solved && b.Solved && c.Solved && a.SolvedBy == b.SolvedBy && b.SolvedBy == c.SolvedBy {
			return string(a.SolvedBy)
		}
	}
	for _, cell := range board {
		if !cell.Solved {
			return ""
		}
	}
	return WinnerTie
}

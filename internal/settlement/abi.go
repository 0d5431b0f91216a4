package settlement

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ICO contract surface used by the relayer: the on-chain price view and the
// payable purchase entry point.
const icoABI = `[
	{
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "calculateUSDAmount",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "saleType", "type": "uint8"},
			{"name": "paymentToken", "type": "address"},
			{"name": "amount", "type": "uint256"},
			{"name": "referrer", "type": "address"}
		],
		"name": "buy",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

const saleTokenABI = `[
	{
		"constant": true,
		"inputs": [{"name": "_owner", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "balance", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "_to", "type": "address"},
			{"name": "_value", "type": "uint256"}
		],
		"name": "transfer",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

var (
	abiOnce        sync.Once
	icoABIParsed   abi.ABI
	tokenABIParsed abi.ABI
	abiErr         error
)

func parsedABIs() (abi.ABI, abi.ABI, error) {
	abiOnce.Do(func() {
		icoABIParsed, abiErr = abi.JSON(strings.NewReader(icoABI))
		if abiErr != nil {
			return
		}
		tokenABIParsed, abiErr = abi.JSON(strings.NewReader(saleTokenABI))
	})
	return icoABIParsed, tokenABIParsed, abiErr
}

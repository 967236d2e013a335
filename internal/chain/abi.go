package chain

// ERC20ABI covers the token calls the market client needs.
const ERC20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

// MarketABI is the prediction market contract. pools(uint256) is the public
// getter of the pool struct; the nested bet array is served by getBets.
const MarketABI = `[
	{"type":"function","name":"getPoolId","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"pools","stateMutability":"view",
	 "inputs":[{"name":"","type":"uint256"}],
	 "outputs":[
		{"name":"question","type":"string"},
		{"name":"url","type":"string"},
		{"name":"parameter","type":"string"},
		{"name":"category","type":"string"},
		{"name":"poll_type","type":"uint8"},
		{"name":"total_amount","type":"uint256"},
		{"name":"total_bets","type":"uint256"},
		{"name":"finalScore","type":"uint256"},
		{"name":"startTime","type":"uint256"},
		{"name":"endTime","type":"uint256"},
		{"name":"poolEnded","type":"bool"}
	 ]},
	{"type":"function","name":"getBets","stateMutability":"view",
	 "inputs":[{"name":"poolId","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"user","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"targetScore","type":"uint256"},
		{"name":"claimedAmount","type":"uint256"},
		{"name":"claimed","type":"bool"}
	 ]}]},
	{"type":"function","name":"createPool","stateMutability":"payable",
	 "inputs":[
		{"name":"question","type":"string"},
		{"name":"url","type":"string"},
		{"name":"parameter","type":"string"},
		{"name":"category","type":"string"},
		{"name":"poll_type","type":"uint8"},
		{"name":"endTime","type":"uint256"}
	 ],
	 "outputs":[]},
	{"type":"function","name":"placeBet","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"amount","type":"uint256"},
		{"name":"targetScore","type":"uint256"},
		{"name":"poolId","type":"uint256"}
	 ],
	 "outputs":[]},
	{"type":"function","name":"claimBet","stateMutability":"nonpayable",
	 "inputs":[{"name":"poolId","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"setResult","stateMutability":"nonpayable",
	 "inputs":[{"name":"poolId","type":"uint256"},{"name":"finalScore","type":"uint256"}],
	 "outputs":[]}
]`

// NFTABI is the participation NFT.
const NFTABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"mintNFT","stateMutability":"nonpayable",
	 "inputs":[{"name":"recipient","type":"address"},{"name":"tokenURI","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// ConversionABI is the USDe/BUZZ swap contract.
const ConversionABI = `[
	{"type":"function","name":"convertUSDetoBuzz","stateMutability":"nonpayable",
	 "inputs":[{"name":"amount","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"convertBuzztoUSDe","stateMutability":"nonpayable",
	 "inputs":[{"name":"amount","type":"uint256"}],
	 "outputs":[]}
]`
